package engine

import (
	"context"
	"fmt"

	"dn-arb-bot/internal/exchange"
)

// legQuote fetches a fresh best bid/ask for one leg. There is no caching:
// every phase that needs a reference price re-resolves because the book may
// have moved since the last call.
func (e *Engine) legQuote(ctx context.Context, leg *Leg) (exchange.Quote, error) {
	var quote exchange.Quote
	var err error
	switch leg.Role {
	case RolePerp:
		quote, err = e.client.PerpQuote(ctx, leg.Market)
	default:
		quote, err = e.client.SpotQuote(ctx, leg.Market)
	}
	if err != nil {
		return exchange.Quote{}, fmt.Errorf("resolve quote for %s: %w", leg.Market, err)
	}
	if quote.Bid <= 0 || quote.Ask <= 0 {
		return exchange.Quote{}, fmt.Errorf("empty quote for %s", leg.Market)
	}
	return quote, nil
}

// makerPrice rests a fixed offset through the touch: below the bid for buys,
// above the ask for sells, so the post-only order cannot immediately match.
func makerPrice(quote exchange.Quote, side exchange.Side, offsetBps float64) float64 {
	offset := offsetBps / 10000
	if side == exchange.SideBuy {
		return quote.Bid * (1 - offset)
	}
	return quote.Ask * (1 + offset)
}

// aggressivePrice crosses the spread by a tolerance so a repriced order
// executes immediately against the book.
func aggressivePrice(quote exchange.Quote, side exchange.Side, bump float64) float64 {
	if side == exchange.SideBuy {
		return quote.Bid * (1 + bump)
	}
	return quote.Ask * (1 - bump)
}
