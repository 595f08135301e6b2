package engine

import (
	"testing"

	"dn-arb-bot/internal/exchange"
)

func TestLegsForPhaseLongSpot(t *testing.T) {
	trade := &Trade{Underlier: "UND", Size: 10, LongSpot: true}

	open := legsForPhase(trade, PhaseOpen)
	if open.Long.Market != "UND/USD" || open.Long.Role != RoleSpot || open.Long.Side != exchange.SideBuy {
		t.Fatalf("open long leg: %+v", open.Long)
	}
	if open.Short.Market != "UND-PERP" || open.Short.Role != RolePerp || open.Short.Side != exchange.SideSell {
		t.Fatalf("open short leg: %+v", open.Short)
	}

	// Closing buys back the perp short and sells out the spot long.
	closing := legsForPhase(trade, PhaseClose)
	if closing.Long.Market != "UND-PERP" || closing.Long.Side != exchange.SideBuy {
		t.Fatalf("close long leg: %+v", closing.Long)
	}
	if closing.Short.Market != "UND/USD" || closing.Short.Side != exchange.SideSell {
		t.Fatalf("close short leg: %+v", closing.Short)
	}
}

func TestLegsForPhaseShortSpot(t *testing.T) {
	trade := &Trade{Underlier: "UND", Size: 10, LongSpot: false}

	open := legsForPhase(trade, PhaseOpen)
	if open.Long.Market != "UND-PERP" {
		t.Fatalf("open long leg: %+v", open.Long)
	}
	if open.Short.Market != "UND/USD" {
		t.Fatalf("open short leg: %+v", open.Short)
	}

	closing := legsForPhase(trade, PhaseClose)
	if closing.Long.Market != "UND/USD" {
		t.Fatalf("close long leg: %+v", closing.Long)
	}
	if closing.Short.Market != "UND-PERP" {
		t.Fatalf("close short leg: %+v", closing.Short)
	}
}

func TestLegsForPhaseCloseSizes(t *testing.T) {
	trade := &Trade{Underlier: "UND", Size: 10, LongSpot: true}
	trade.LongOpen = EffectiveFill{Size: 9.7}
	trade.ShortOpen = EffectiveFill{Size: 10}

	closing := legsForPhase(trade, PhaseClose)
	if closing.Long.RequestedSize != 10 {
		t.Fatalf("close long size: got %v, want 10", closing.Long.RequestedSize)
	}
	if closing.Short.RequestedSize != 9.7 {
		t.Fatalf("close short size: got %v, want 9.7", closing.Short.RequestedSize)
	}
}
