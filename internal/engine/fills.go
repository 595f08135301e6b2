package engine

import (
	"context"
	"errors"
	"fmt"

	"dn-arb-bot/internal/exchange"

	"go.uber.org/zap"
)

// ErrShortFill reports that a leg's recorded fills still cover less than the
// requested size after escalation. The trade aborts rather than book a
// position it cannot account for.
var ErrShortFill = errors.New("recorded fills smaller than requested size")

// errNoFills marks a fetch that found no execution for any of the leg's
// orders, usually venue reporting lag.
var errNoFills = errors.New("no fills found")

const sizeTolerance = 1e-9

// AggregateFills reduces the venue's raw fill list to one effective fill for
// orderID. The list is newest-first; aggregation starts at the first matching
// fill and consumes the consecutive run of fills with that id, stopping at
// the first foreign one so only the current phase's executions are counted.
func AggregateFills(fills []exchange.RawFill, orderID int64) (EffectiveFill, error) {
	start := -1
	for i, fill := range fills {
		if fill.OrderID == orderID {
			start = i
			break
		}
	}
	if start < 0 {
		return EffectiveFill{}, fmt.Errorf("no fills for order %d", orderID)
	}
	eff := EffectiveFill{OrderID: orderID}
	for _, fill := range fills[start:] {
		if fill.OrderID != orderID {
			break
		}
		eff.Price = (eff.Price*eff.Size + fill.Price*fill.Size) / (eff.Size + fill.Size)
		eff.Size += fill.Size
		eff.Fee += fill.Fee
	}
	return eff, nil
}

// mergeEffective folds b into a with a size-weighted price. The merged fill
// keeps a's order id; it stands for the whole chain of orders that worked
// the leg.
func mergeEffective(a, b EffectiveFill) EffectiveFill {
	if a.Size == 0 {
		b.OrderID = a.OrderID
		return b
	}
	if b.Size == 0 {
		return a
	}
	return EffectiveFill{
		OrderID: a.OrderID,
		Price:   (a.Price*a.Size + b.Price*b.Size) / (a.Size + b.Size),
		Size:    a.Size + b.Size,
		Fee:     a.Fee + b.Fee,
	}
}

// recordFills turns each leg's raw fills into one effective fill and stores
// the pair on the trade. Closing swaps the slots: the close-phase long leg
// unwinds the opening short position, so its fill lands in ShortClose.
func (e *Engine) recordFills(ctx context.Context, trade *Trade, phase Phase, legs *legPair) error {
	longFill, err := e.legFill(ctx, legs.Long)
	if err != nil {
		return err
	}
	shortFill, err := e.legFill(ctx, legs.Short)
	if err != nil {
		return err
	}
	if phase == PhaseOpen {
		trade.LongOpen = longFill
		trade.ShortOpen = shortFill
	} else {
		trade.LongClose = shortFill
		trade.ShortClose = longFill
	}
	e.record(ctx, "fills_recorded", map[string]any{
		"phase":       string(phase),
		"long_market": legs.Long.Market,
		"long_price":  longFill.Price,
		"long_size":   longFill.Size,
		"long_fee":    longFill.Fee,
		"short_price": shortFill.Price,
		"short_size":  shortFill.Size,
		"short_fee":   shortFill.Fee,
	})
	return nil
}

// legFill fetches the leg's market fills, merges the effective fill of every
// order id that worked the leg, and escalates any residual shortfall with one
// market order before giving up.
func (e *Engine) legFill(ctx context.Context, leg *Leg) (EffectiveFill, error) {
	merged, err := e.mergedFill(ctx, leg)
	if errors.Is(err, errNoFills) {
		// One bounded retry for venue reporting lag.
		if serr := sleepCtx(ctx, e.cfg.FillLag); serr != nil {
			return EffectiveFill{}, serr
		}
		merged, err = e.mergedFill(ctx, leg)
	}
	if err != nil {
		return EffectiveFill{}, err
	}
	shortfall := leg.RequestedSize - merged.Size
	if shortfall <= sizeTolerance {
		return merged, nil
	}

	// The venue reported the order gone but its fills do not add up to the
	// request. Take the difference at market, then re-aggregate.
	e.log.Warn("fill shortfall, taking remainder at market",
		zap.String("market", leg.Market),
		zap.Float64("requested", leg.RequestedSize),
		zap.Float64("filled", merged.Size),
	)
	e.metrics.Escalations.Inc()
	order, err := e.client.PlaceOrder(ctx, exchange.OrderRequest{
		Market: leg.Market,
		Side:   leg.Side,
		Kind:   exchange.KindMarket,
		Size:   shortfall,
	})
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return EffectiveFill{}, fmt.Errorf("shortfall market order on %s: %w", leg.Market, err)
	}
	e.metrics.OrdersPlaced.Inc()
	leg.OrderIDs = append(leg.OrderIDs, order.ID)
	if err := sleepCtx(ctx, e.cfg.FillLag); err != nil {
		return EffectiveFill{}, err
	}
	merged, err = e.mergedFill(ctx, leg)
	if err != nil {
		return EffectiveFill{}, err
	}
	if leg.RequestedSize-merged.Size > sizeTolerance {
		return EffectiveFill{}, fmt.Errorf("%w: %s requested %v filled %v",
			ErrShortFill, leg.Market, leg.RequestedSize, merged.Size)
	}
	return merged, nil
}

// mergedFill aggregates per order id and folds the chain together. Ids with
// no fills at all are skipped (an escalation replacement can resolve without
// ever executing); at least one id must have fills.
func (e *Engine) mergedFill(ctx context.Context, leg *Leg) (EffectiveFill, error) {
	fills, err := e.client.Fills(ctx, leg.Market)
	if err != nil {
		return EffectiveFill{}, fmt.Errorf("fetch fills for %s: %w", leg.Market, err)
	}
	merged := EffectiveFill{OrderID: leg.OrderIDs[0]}
	found := false
	for _, id := range leg.OrderIDs {
		eff, err := AggregateFills(fills, id)
		if err != nil {
			continue
		}
		found = true
		merged = mergeEffective(merged, eff)
	}
	if !found {
		return EffectiveFill{}, fmt.Errorf("%w on %s for orders %v", errNoFills, leg.Market, leg.OrderIDs)
	}
	return merged, nil
}
