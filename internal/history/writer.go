package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"sol-bundler-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Trade is one scheduler trade outcome bound for the trades table.
type Trade struct {
	Time        time.Time
	SessionID   string
	Token       string
	Side        string
	Wallet      string
	AmountSol   float64
	SellPercent float64
	Succeeded   int
	Failed      int
	Error       string
}

// Writer persists trade history to Postgres off the hot path. Enqueue never
// blocks: a full queue drops the record and warns once.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	trades  chan Trade
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
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
		trades: make(chan Trade, queueSize),
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

func (w *Writer) Enqueue(trade Trade) {
	if w == nil {
		return
	}
	select {
	case w.trades <- trade:
		return
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("trade history queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade := <-w.trades:
			w.writeTrade(ctx, trade)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	return w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		session_id TEXT NOT NULL,
		token TEXT NOT NULL,
		side TEXT NOT NULL,
		wallet TEXT NOT NULL,
		amount_sol DOUBLE PRECISION NOT NULL,
		sell_percent DOUBLE PRECISION NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`, w.table("trades")))
}

func (w *Writer) writeTrade(ctx context.Context, trade Trade) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, session_id, token, side, wallet, amount_sol, sell_percent, succeeded, failed, error
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	)`, w.table("trades"))
	if _, err := w.db.ExecContext(ctx, query,
		trade.Time,
		trade.SessionID,
		trade.Token,
		trade.Side,
		trade.Wallet,
		trade.AmountSol,
		trade.SellPercent,
		trade.Succeeded,
		trade.Failed,
		trade.Error,
	); err != nil && w.log != nil {
		w.log.Warn("trade history insert failed", zap.Error(err))
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
