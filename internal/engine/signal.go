package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Decision is the direction call for one trade, with the inputs that
// produced it kept for the audit trail.
type Decision struct {
	LongSpot    bool
	Forced      bool
	LendRate    float64
	BorrowRate  float64
	FundingRate float64

	// Funding PnL of each stance over one accrual period, in quote units.
	LongSpotPnL  float64
	ShortSpotPnL float64
}

// decideDirection compares the carry of long-spot/short-perp (lend the asset,
// pay or receive funding) against short-spot/long-perp (pay to borrow,
// receive funding). A missing rate aborts the trade before any order exists.
//
// The comparison is always computed and logged even when force_long_spot
// overrides it; the override exists because shorting spot was operationally
// unavailable on the modeled venue.
func (e *Engine) decideDirection(ctx context.Context, trade *Trade) (Decision, error) {
	borrow, err := e.client.BorrowRate(ctx, trade.Underlier)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve borrow rate for %s: %w", trade.Underlier, err)
	}
	lend, err := e.client.LendRate(ctx, trade.Underlier)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve lend rate for %s: %w", trade.Underlier, err)
	}
	funding, err := e.client.FundingRate(ctx, trade.Underlier)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve funding rate for %s: %w", trade.Underlier, err)
	}

	decision := Decision{
		LendRate:     lend,
		BorrowRate:   borrow,
		FundingRate:  funding,
		LongSpotPnL:  trade.Size * (lend + funding),
		ShortSpotPnL: trade.Size * (-funding - borrow),
	}
	decision.LongSpot = decision.LongSpotPnL > decision.ShortSpotPnL
	if e.cfg.ForceLongSpot != nil && *e.cfg.ForceLongSpot {
		decision.Forced = true
		decision.LongSpot = true
	}
	e.log.Info("direction decided",
		zap.String("underlier", trade.Underlier),
		zap.Bool("long_spot", decision.LongSpot),
		zap.Bool("forced", decision.Forced),
		zap.Float64("lend_rate", lend),
		zap.Float64("borrow_rate", borrow),
		zap.Float64("funding_rate", funding),
		zap.Float64("long_spot_pnl", decision.LongSpotPnL),
		zap.Float64("short_spot_pnl", decision.ShortSpotPnL),
	)
	return decision, nil
}
