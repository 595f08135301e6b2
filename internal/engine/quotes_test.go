package engine

import (
	"math"
	"testing"

	"dn-arb-bot/internal/exchange"
)

func TestMakerPrice(t *testing.T) {
	quote := exchange.Quote{Bid: 1000, Ask: 1001}
	if got := makerPrice(quote, exchange.SideBuy, 5); math.Abs(got-999.5) > 1e-9 {
		t.Fatalf("buy maker price: got %v, want 999.5", got)
	}
	if got := makerPrice(quote, exchange.SideSell, 5); math.Abs(got-1001.5005) > 1e-9 {
		t.Fatalf("sell maker price: got %v, want 1001.5005", got)
	}
}

func TestAggressivePrice(t *testing.T) {
	quote := exchange.Quote{Bid: 1000, Ask: 1001}
	if got := aggressivePrice(quote, exchange.SideBuy, 0.05); math.Abs(got-1050) > 1e-9 {
		t.Fatalf("buy aggressive price: got %v, want 1050", got)
	}
	if got := aggressivePrice(quote, exchange.SideSell, 0.05); math.Abs(got-950.95) > 1e-9 {
		t.Fatalf("sell aggressive price: got %v, want 950.95", got)
	}
}
