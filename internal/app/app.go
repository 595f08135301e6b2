package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dn-arb-bot/internal/alerts"
	"dn-arb-bot/internal/config"
	"dn-arb-bot/internal/engine"
	"dn-arb-bot/internal/exchange"
	"dn-arb-bot/internal/ftx/rest"
	"dn-arb-bot/internal/ftx/ws"
	"dn-arb-bot/internal/journal"
	"dn-arb-bot/internal/metrics"
	"dn-arb-bot/internal/timescale"

	"go.uber.org/zap"
)

// App wires the venue client, audit journal, observability, and the trade
// engine together and runs one round trip.
type App struct {
	cfg        *config.Config
	log        *zap.Logger
	journal    *journal.Journal
	rest       *rest.Client
	client     *exchange.FTX
	fillStream *ws.Client
	writer     *timescale.Writer
	prom       *metrics.Prometheus
	alerts     *alerts.Telegram
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Journal.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	tradeJournal, err := journal.Open(cfg.Journal.SQLitePath)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(os.Getenv("FTX_API_KEY"))
	if key == "" {
		return nil, errors.New("FTX_API_KEY is required")
	}
	secret := strings.TrimSpace(os.Getenv("FTX_API_SECRET"))
	if secret == "" {
		return nil, errors.New("FTX_API_SECRET is required")
	}
	creds := rest.Credentials{Key: key, Secret: secret, Subaccount: cfg.REST.Subaccount}

	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, creds, log)
	client := exchange.NewFTX(restClient)

	var fillStream *ws.Client
	if cfg.WS.Enabled {
		fillStream = ws.New(cfg.WS.URL, creds, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
	}

	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		return nil, err
	}

	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
	}

	return &App{
		cfg:        cfg,
		log:        log,
		journal:    tradeJournal,
		rest:       restClient,
		client:     client,
		fillStream: fillStream,
		writer:     writer,
		prom:       prom,
		alerts:     alerts.NewTelegram(cfg.Telegram, log),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.journal.Close()
	defer a.writer.Close()

	if a.prom != nil {
		a.serveMetrics(ctx)
	}
	a.writer.Start(ctx)
	if a.fillStream != nil {
		go func() {
			if err := a.fillStream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("fill stream stopped", zap.Error(err))
			}
		}()
	}

	if err := a.checkNotional(ctx); err != nil {
		return err
	}

	var m *metrics.Metrics
	if a.prom != nil {
		m = a.prom.Metrics
	}
	eng := engine.New(a.client, a.cfg.Trade, a.log, a.journal, m)
	if a.fillStream != nil {
		eng.SetFillEvents(a.fillStream.FillEvents())
	}

	trade, err := eng.Run(ctx)
	if err != nil {
		if alertErr := a.alerts.TradeFailed(ctx, a.cfg.Trade.Underlier, err); alertErr != nil {
			a.log.Warn("alert send failed", zap.Error(alertErr))
		}
		return err
	}

	a.recordTrade(trade)
	if err := a.alerts.TradeComplete(ctx, trade); err != nil {
		a.log.Warn("alert send failed", zap.Error(err))
	}
	return nil
}

// checkNotional refuses to trade when the configured size is worth more than
// the cap at the current spot mid.
func (a *App) checkNotional(ctx context.Context) error {
	limit := a.cfg.Trade.MaxNotionalUSD
	if limit <= 0 {
		return nil
	}
	quote, err := a.client.SpotQuote(ctx, exchange.SpotMarket(a.cfg.Trade.Underlier))
	if err != nil {
		return fmt.Errorf("notional check: %w", err)
	}
	mid := (quote.Bid + quote.Ask) / 2
	notional := a.cfg.Trade.Size * mid
	if notional > limit {
		return fmt.Errorf("trade notional %.2f USD exceeds cap %.2f USD", notional, limit)
	}
	return nil
}

func (a *App) recordTrade(trade *engine.Trade) {
	now := time.Now().UTC()
	longMarket, shortMarket := exchange.SpotMarket(trade.Underlier), exchange.PerpMarket(trade.Underlier)
	if !trade.LongSpot {
		longMarket, shortMarket = shortMarket, longMarket
	}
	fills := []struct {
		phase  string
		market string
		side   string
		fill   engine.EffectiveFill
	}{
		{"open", longMarket, "buy", trade.LongOpen},
		{"open", shortMarket, "sell", trade.ShortOpen},
		{"close", longMarket, "sell", trade.LongClose},
		{"close", shortMarket, "buy", trade.ShortClose},
	}
	for _, f := range fills {
		a.writer.EnqueueFill(timescale.FillRecord{
			Time:      now,
			Underlier: trade.Underlier,
			Phase:     f.phase,
			Market:    f.market,
			Side:      f.side,
			OrderID:   f.fill.OrderID,
			Price:     f.fill.Price,
			Size:      f.fill.Size,
			Fee:       f.fill.Fee,
		})
	}
	a.writer.EnqueueTrade(timescale.TradeRecord{
		Time:            now,
		Underlier:       trade.Underlier,
		LongSpot:        trade.LongSpot,
		Size:            trade.Size,
		LongOpenPrice:   trade.LongOpen.Price,
		ShortOpenPrice:  trade.ShortOpen.Price,
		LongClosePrice:  trade.LongClose.Price,
		ShortClosePrice: trade.ShortClose.Price,
		Fees:            trade.LongOpen.Fee + trade.ShortOpen.Fee + trade.LongClose.Fee + trade.ShortClose.Fee,
		PnL:             trade.PnL,
	})
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
	go func() {
		a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
