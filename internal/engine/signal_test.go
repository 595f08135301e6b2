package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestDecideDirectionPrefersBetterCarry(t *testing.T) {
	cases := []struct {
		name     string
		lend     float64
		borrow   float64
		funding  float64
		longSpot bool
	}{
		{"positive funding favors long spot", 0.0001, 0.0002, 0.001, true},
		{"negative funding favors short spot", 0.0001, 0.0002, -0.001, false},
		{"high borrow keeps long spot ahead", 0.0001, 0.05, 0.0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mockClient{lend: tc.lend, borrow: tc.borrow, funding: tc.funding}
			eng := New(client, testTradeConfig(), zap.NewNop(), nil, nil)
			trade := &Trade{Underlier: "UND", Size: 10}
			decision, err := eng.decideDirection(context.Background(), trade)
			if err != nil {
				t.Fatalf("decide: %v", err)
			}
			if decision.LongSpot != tc.longSpot {
				t.Fatalf("long spot: got %v, want %v", decision.LongSpot, tc.longSpot)
			}
			if decision.Forced {
				t.Fatal("decision should not be forced")
			}
		})
	}
}

func TestDecideDirectionForceLongSpot(t *testing.T) {
	// Rates say short spot; the override wins anyway.
	client := &mockClient{lend: 0.0001, borrow: 0.0002, funding: -0.01}
	cfg := testTradeConfig()
	force := true
	cfg.ForceLongSpot = &force
	eng := New(client, cfg, zap.NewNop(), nil, nil)

	decision, err := eng.decideDirection(context.Background(), &Trade{Underlier: "UND", Size: 10})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.LongSpot || !decision.Forced {
		t.Fatalf("expected forced long spot, got %+v", decision)
	}
	// The rate comparison is still computed for the audit trail.
	if decision.ShortSpotPnL <= decision.LongSpotPnL {
		t.Fatalf("expected rates to favor short spot: %+v", decision)
	}
}
