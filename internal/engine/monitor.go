package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrMonitorTimeout reports that the monitoring window elapsed with neither
// resting order resolved. Both orders have been cancelled by the time the
// caller sees it.
var ErrMonitorTimeout = errors.New("order monitoring timed out")

// monitor polls both resting orders and returns as soon as at least one is
// resolved (fully executed or otherwise gone from the book); escalation then
// forces whichever leg is still open. If the timeout elapses with neither
// leg resolved, both orders are pulled and the phase fails. Cancellation
// likewise pulls both orders before unwinding.
func (e *Engine) monitor(ctx context.Context, phase Phase, legs *legPair) error {
	deadline := time.NewTimer(e.cfg.MonitorTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()

	for {
		resolved := 0
		for _, leg := range legs.both() {
			if !leg.Resolved {
				if err := e.refreshLeg(ctx, leg); err != nil {
					return err
				}
			}
			if leg.Resolved {
				resolved++
			}
		}
		if resolved > 0 {
			e.log.Info("monitoring done",
				zap.String("phase", string(phase)),
				zap.Int("resolved_legs", resolved),
			)
			return nil
		}

		select {
		case <-ctx.Done():
			e.cancelLegs(ctx, legs)
			return ctx.Err()
		case <-deadline.C:
			e.log.Warn("monitoring timed out, cancelling both orders",
				zap.String("phase", string(phase)),
				zap.Duration("timeout", e.cfg.MonitorTimeout),
			)
			e.cancelLegs(ctx, legs)
			return ErrMonitorTimeout
		case id := <-e.fillEvents:
			e.log.Debug("fill event", zap.Int64("order_id", id))
		case <-poll.C:
		}
	}
}

// refreshLeg re-reads one order's live state. An order absent from the open
// list is resolved: either fully executed or cancelled out of band, and the
// fill record settles which.
func (e *Engine) refreshLeg(ctx context.Context, leg *Leg) error {
	order, found, err := e.client.OrderStatus(ctx, leg.OrderID, leg.Market)
	if err != nil {
		return err
	}
	if !found {
		leg.Resolved = true
		leg.Remaining = 0
		return nil
	}
	leg.Remaining = order.RemainingSize
	if order.RemainingSize <= 0 {
		leg.Resolved = true
	}
	return nil
}

// cancelLegs best-effort cancels whatever is still live. Cancel failures are
// logged rather than returned; the caller's error already carries the reason
// the trade is aborting. A fresh context backs the cancels so they still go
// out when the trade context itself is what died.
func (e *Engine) cancelLegs(ctx context.Context, legs *legPair) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	for _, leg := range legs.both() {
		if leg.Resolved {
			continue
		}
		if err := e.client.CancelOrder(ctx, leg.OrderID); err != nil {
			e.log.Error("cancel failed",
				zap.String("market", leg.Market),
				zap.Int64("order_id", leg.OrderID),
				zap.Error(err),
			)
		}
	}
}
