package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dn-arb-bot/internal/config"
	"dn-arb-bot/internal/exchange"
	"dn-arb-bot/internal/metrics"

	"go.uber.org/zap"
)

// Journal receives the durable audit trail. Append failures are logged but
// never abort a live trade.
type Journal interface {
	Append(ctx context.Context, kind string, payload map[string]any) error
}

// Engine drives one delta-neutral round trip: direction decision, paired
// maker entry, fill monitoring, leftover escalation, fill aggregation, hold,
// the mirrored close, and PnL. All state is owned by the single in-flight
// trade; run one Engine per trade.
type Engine struct {
	client  exchange.Client
	cfg     config.TradeConfig
	log     *zap.Logger
	journal Journal
	metrics *metrics.Metrics

	fillEvents <-chan int64
}

func New(client exchange.Client, cfg config.TradeConfig, log *zap.Logger, journal Journal, m *metrics.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{client: client, cfg: cfg, log: log, journal: journal, metrics: m}
}

// SetFillEvents attaches a push-based fill stream. Each received value is an
// order id reported filled; the monitor uses it to re-check immediately
// instead of waiting out the poll interval.
func (e *Engine) SetFillEvents(ch <-chan int64) {
	e.fillEvents = ch
}

// Run executes one full trade and returns it with all four effective fills
// and realized PnL populated. Any error aborts the trade; open positions are
// then the operator's to reconcile.
func (e *Engine) Run(ctx context.Context) (*Trade, error) {
	trade := &Trade{Underlier: e.cfg.Underlier, Size: e.cfg.Size}
	if trade.Size <= 0 {
		return nil, errors.New("trade size must be > 0")
	}

	decision, err := e.decideDirection(ctx, trade)
	if err != nil {
		return nil, err
	}
	trade.LongSpot = decision.LongSpot
	e.record(ctx, "direction", map[string]any{
		"underlier":      trade.Underlier,
		"long_spot":      decision.LongSpot,
		"forced":         decision.Forced,
		"lend_rate":      decision.LendRate,
		"borrow_rate":    decision.BorrowRate,
		"funding_rate":   decision.FundingRate,
		"long_spot_pnl":  decision.LongSpotPnL,
		"short_spot_pnl": decision.ShortSpotPnL,
	})

	if err := e.runPhase(ctx, trade, PhaseOpen); err != nil {
		e.metrics.TradesFailed.Inc()
		return nil, fmt.Errorf("open phase: %w", err)
	}
	e.log.Info("position opened",
		zap.String("underlier", trade.Underlier),
		zap.Float64("long_open_price", trade.LongOpen.Price),
		zap.Float64("short_open_price", trade.ShortOpen.Price),
		zap.Float64("long_open_size", trade.LongOpen.Size),
		zap.Float64("short_open_size", trade.ShortOpen.Size),
	)

	if err := e.hold(ctx); err != nil {
		e.metrics.TradesFailed.Inc()
		return nil, err
	}

	if err := e.runPhase(ctx, trade, PhaseClose); err != nil {
		e.metrics.TradesFailed.Inc()
		return nil, fmt.Errorf("close phase: %w", err)
	}

	trade.PnL = CalcPnL(trade.LongOpen, trade.LongClose, trade.ShortOpen, trade.ShortClose)
	e.metrics.TradesCompleted.Inc()
	e.record(ctx, "pnl", map[string]any{"underlier": trade.Underlier, "pnl": trade.PnL})
	e.log.Info("trade complete",
		zap.String("underlier", trade.Underlier),
		zap.Bool("long_spot", trade.LongSpot),
		zap.Float64("pnl", trade.PnL),
	)
	return trade, nil
}

// runPhase drives the paired legs through one phase: PLACED, MONITORING,
// escalation of whichever leg is left over, then fill recording. In market
// mode both legs go straight in as takers and there is nothing to monitor.
func (e *Engine) runPhase(ctx context.Context, trade *Trade, phase Phase) error {
	legs := legsForPhase(trade, phase)
	if e.cfg.Mode == config.ModeMarket {
		if err := e.placeMarketLegs(ctx, phase, legs); err != nil {
			return err
		}
		if err := sleepCtx(ctx, e.cfg.FillLag); err != nil {
			return err
		}
		return e.recordFills(ctx, trade, phase, legs)
	}

	if err := e.placeMakerLegs(ctx, phase, legs); err != nil {
		return err
	}
	if err := e.monitor(ctx, phase, legs); err != nil {
		return err
	}
	if err := e.escalateLeftovers(ctx, phase, legs); err != nil {
		return err
	}
	if err := sleepCtx(ctx, e.cfg.FillLag); err != nil {
		return err
	}
	return e.recordFills(ctx, trade, phase, legs)
}

// placeMakerLegs resolves fresh quotes and submits both post-only resting
// orders: the buy a fixed offset below the bid, the sell the same offset
// above the ask.
func (e *Engine) placeMakerLegs(ctx context.Context, phase Phase, legs *legPair) error {
	for _, leg := range legs.both() {
		quote, err := e.legQuote(ctx, leg)
		if err != nil {
			return err
		}
		price := makerPrice(quote, leg.Side, e.cfg.PriceOffsetBps)
		if err := e.placeLeg(ctx, phase, leg, exchange.OrderRequest{
			Market:   leg.Market,
			Side:     leg.Side,
			Kind:     exchange.KindLimit,
			Price:    price,
			Size:     leg.RequestedSize,
			PostOnly: true,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) placeMarketLegs(ctx context.Context, phase Phase, legs *legPair) error {
	for _, leg := range legs.both() {
		if err := e.placeLeg(ctx, phase, leg, exchange.OrderRequest{
			Market: leg.Market,
			Side:   leg.Side,
			Kind:   exchange.KindMarket,
			Size:   leg.RequestedSize,
		}); err != nil {
			return err
		}
		leg.Resolved = true
		leg.Remaining = 0
	}
	return nil
}

func (e *Engine) placeLeg(ctx context.Context, phase Phase, leg *Leg, req exchange.OrderRequest) error {
	if req.Size <= 0 {
		return fmt.Errorf("derived size for %s is not positive", leg.Market)
	}
	order, err := e.client.PlaceOrder(ctx, req)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return fmt.Errorf("place %s %s on %s: %w", req.Kind, req.Side, req.Market, err)
	}
	e.metrics.OrdersPlaced.Inc()
	leg.OrderID = order.ID
	leg.OrderIDs = append(leg.OrderIDs, order.ID)
	leg.Remaining = req.Size
	e.record(ctx, "order_placed", map[string]any{
		"phase":    string(phase),
		"market":   leg.Market,
		"side":     string(req.Side),
		"kind":     string(req.Kind),
		"price":    req.Price,
		"size":     req.Size,
		"order_id": order.ID,
	})
	e.log.Info("order placed",
		zap.String("phase", string(phase)),
		zap.String("market", leg.Market),
		zap.String("side", string(req.Side)),
		zap.String("kind", string(req.Kind)),
		zap.Float64("price", req.Price),
		zap.Float64("size", req.Size),
		zap.Int64("order_id", order.ID),
	)
	return nil
}

// hold keeps the position on while carry accrues. A funding-accrual exit
// condition would slot in here; for now the window is a fixed duration.
func (e *Engine) hold(ctx context.Context) error {
	e.log.Info("holding position", zap.Duration("hold", e.cfg.Hold))
	return sleepCtx(ctx, e.cfg.Hold)
}

func (e *Engine) record(ctx context.Context, kind string, payload map[string]any) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(ctx, kind, payload); err != nil {
		e.log.Warn("journal append failed", zap.String("kind", kind), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
