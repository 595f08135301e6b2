package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"dn-arb-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// FillRecord is one effective fill as booked by the engine, one row per leg
// per phase.
type FillRecord struct {
	Time      time.Time
	Underlier string
	Phase     string
	Market    string
	Side      string
	OrderID   int64
	Price     float64
	Size      float64
	Fee       float64
}

// TradeRecord summarizes one completed round trip.
type TradeRecord struct {
	Time            time.Time
	Underlier       string
	LongSpot        bool
	Size            float64
	LongOpenPrice   float64
	ShortOpenPrice  float64
	LongClosePrice  float64
	ShortClosePrice float64
	Fees            float64
	PnL             float64
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	fills     chan FillRecord
	trades    chan TradeRecord
	started   atomic.Bool
	dropFill  atomic.Uint64
	dropTrade atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		fills:  make(chan FillRecord, queueSize),
		trades: make(chan TradeRecord, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueFill(record FillRecord) {
	if w == nil {
		return
	}
	select {
	case w.fills <- record:
		return
	default:
		if w.dropFill.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale fill queue full")
		}
	}
}

func (w *Writer) EnqueueTrade(record TradeRecord) {
	if w == nil {
		return
	}
	select {
	case w.trades <- record:
		return
	default:
		if w.dropTrade.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale trade queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case record := <-w.fills:
			w.writeFill(ctx, record)
		case record := <-w.trades:
			w.writeTrade(ctx, record)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		underlier TEXT NOT NULL,
		phase TEXT NOT NULL,
		market TEXT NOT NULL,
		side TEXT NOT NULL,
		order_id BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		fee DOUBLE PRECISION NOT NULL
	)`, w.table("effective_fills"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		underlier TEXT NOT NULL,
		long_spot BOOLEAN NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		long_open_price DOUBLE PRECISION NOT NULL,
		short_open_price DOUBLE PRECISION NOT NULL,
		long_close_price DOUBLE PRECISION NOT NULL,
		short_close_price DOUBLE PRECISION NOT NULL,
		fees DOUBLE PRECISION NOT NULL,
		pnl DOUBLE PRECISION NOT NULL
	)`, w.table("trades"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("effective_fills"))); err != nil && w.log != nil {
		w.log.Warn("timescale effective_fills hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("trades"))); err != nil && w.log != nil {
		w.log.Warn("timescale trades hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeFill(ctx context.Context, record FillRecord) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, underlier, phase, market, side, order_id, price, size, fee
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table("effective_fills"))
	if _, err := w.db.ExecContext(ctx, query,
		record.Time,
		record.Underlier,
		record.Phase,
		record.Market,
		record.Side,
		record.OrderID,
		record.Price,
		record.Size,
		record.Fee,
	); err != nil && w.log != nil {
		w.log.Warn("timescale fill insert failed", zap.Error(err))
	}
}

func (w *Writer) writeTrade(ctx context.Context, record TradeRecord) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, underlier, long_spot, size, long_open_price, short_open_price,
		long_close_price, short_close_price, fees, pnl
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	)`, w.table("trades"))
	if _, err := w.db.ExecContext(ctx, query,
		record.Time,
		record.Underlier,
		record.LongSpot,
		record.Size,
		record.LongOpenPrice,
		record.ShortOpenPrice,
		record.LongClosePrice,
		record.ShortClosePrice,
		record.Fees,
		record.PnL,
	); err != nil && w.log != nil {
		w.log.Warn("timescale trade insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
