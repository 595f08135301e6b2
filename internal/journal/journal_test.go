package journal

import (
	"context"
	"path/filepath"
	"testing"
)

func TestJournalRoundTrip(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	if err := j.Append(ctx, "direction", map[string]any{"underlier": "SOL", "long_spot": true}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := j.Append(ctx, "pnl", map[string]any{"pnl": -2.6}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	events, err := j.Events(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != "direction" || events[1].Kind != "pnl" {
		t.Fatalf("unexpected order: %s, %s", events[0].Kind, events[1].Kind)
	}
	if got := events[0].Payload["underlier"]; got != "SOL" {
		t.Fatalf("unexpected payload value: %v", got)
	}
	if got := events[1].Payload["pnl"]; got != -2.6 {
		t.Fatalf("unexpected pnl payload: %v", got)
	}
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	if err := j.Append(ctx, "order_placed", map[string]any{"order_id": int64(7)}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatalf("failed to reopen journal: %v", err)
	}
	defer j.Close()
	events, err := j.Events(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "order_placed" {
		t.Fatalf("unexpected events after reopen: %+v", events)
	}
}
