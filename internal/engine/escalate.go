package engine

import (
	"context"
	"fmt"

	"dn-arb-bot/internal/config"
	"dn-arb-bot/internal/exchange"

	"go.uber.org/zap"
)

// escalateLeftovers resolves any leg the monitor left partially worked. The
// market strategy pulls the resting order and takes the remainder; the
// reprice strategy keeps amending the same order toward the touch until it
// executes.
func (e *Engine) escalateLeftovers(ctx context.Context, phase Phase, legs *legPair) error {
	for _, leg := range legs.both() {
		if leg.Resolved && leg.Remaining <= 0 {
			continue
		}
		e.metrics.Escalations.Inc()
		e.log.Warn("escalating leftover leg",
			zap.String("phase", string(phase)),
			zap.String("market", leg.Market),
			zap.Float64("remaining", leg.Remaining),
			zap.String("strategy", e.cfg.Escalation),
		)
		var err error
		switch e.cfg.Escalation {
		case config.EscalationReprice:
			err = e.escalateReprice(ctx, phase, leg)
		default:
			err = e.escalateMarket(ctx, phase, leg)
		}
		if err != nil {
			return fmt.Errorf("escalate %s: %w", leg.Market, err)
		}
	}
	return nil
}

// escalateMarket cancels the resting order and takes the unfilled remainder
// in one market order.
func (e *Engine) escalateMarket(ctx context.Context, phase Phase, leg *Leg) error {
	if err := e.client.CancelOrder(ctx, leg.OrderID); err != nil {
		return fmt.Errorf("cancel order %d: %w", leg.OrderID, err)
	}
	if err := e.placeLeg(ctx, phase, leg, exchange.OrderRequest{
		Market: leg.Market,
		Side:   leg.Side,
		Kind:   exchange.KindMarket,
		Size:   leg.Remaining,
	}); err != nil {
		return err
	}
	leg.Resolved = true
	leg.Remaining = 0
	return nil
}

// escalateReprice repeatedly amends the live order to a price through the
// current touch until the venue reports it gone. Each amendment re-resolves
// the quote; the venue returns a replacement order whose id is appended so
// fill aggregation can follow the whole chain.
func (e *Engine) escalateReprice(ctx context.Context, phase Phase, leg *Leg) error {
	for !leg.Resolved {
		quote, err := e.legQuote(ctx, leg)
		if err != nil {
			return err
		}
		price := aggressivePrice(quote, leg.Side, e.cfg.PriceBump)
		order, err := e.client.ModifyOrder(ctx, leg.OrderID, &price, nil)
		if err != nil {
			return fmt.Errorf("modify order %d: %w", leg.OrderID, err)
		}
		if order.ID != 0 && order.ID != leg.OrderID {
			leg.OrderID = order.ID
			leg.OrderIDs = append(leg.OrderIDs, order.ID)
		}
		e.log.Info("order repriced",
			zap.String("phase", string(phase)),
			zap.String("market", leg.Market),
			zap.Float64("price", price),
			zap.Int64("order_id", leg.OrderID),
		)
		if err := sleepCtx(ctx, e.cfg.RepriceInterval); err != nil {
			return err
		}
		if err := e.refreshLeg(ctx, leg); err != nil {
			return err
		}
	}
	leg.Remaining = 0
	return nil
}
