package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// Journal is the append-only audit trail of one bot run. Every order, fill
// record, and PnL result lands here in insertion order so a trade can be
// reconstructed after the fact.
type Journal struct {
	db *sql.DB
}

// Event is one recorded step of a trade.
type Event struct {
	ID      int64
	At      time.Time
	Kind    string
	Payload map[string]any
}

func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL
	)`)
	return err
}

func (j *Journal) Append(ctx context.Context, kind string, payload map[string]any) error {
	encoded, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO events (at, kind, payload) VALUES (?, ?, ?)`,
		time.Now().UnixMilli(), kind, encoded)
	return err
}

// Events returns the full journal in insertion order.
func (j *Journal) Events(ctx context.Context) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id, at, kind, payload FROM events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event   Event
			atMilli int64
			encoded []byte
		)
		if err := rows.Scan(&event.ID, &atMilli, &event.Kind, &encoded); err != nil {
			return nil, err
		}
		event.At = time.UnixMilli(atMilli)
		if err := msgpack.Unmarshal(encoded, &event.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %d: %w", event.ID, err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
