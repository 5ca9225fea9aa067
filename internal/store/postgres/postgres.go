// Package postgres stores and loads historical ticks in PostgreSQL. Prices
// are kept as NUMERIC and moved through shopspring decimals so imports keep
// the exchange's exact quote.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"macross/internal/model"
)

// ErrNoDSN is returned when no connection string is configured.
var ErrNoDSN = errors.New("postgres dsn not configured")

const schema = `
	CREATE TABLE IF NOT EXISTS ticks (
		id    BIGSERIAL PRIMARY KEY,
		ts    BIGINT  NOT NULL,
		price NUMERIC NOT NULL
	);
	CREATE INDEX IF NOT EXISTS ticks_ts ON ticks (ts);
`

// Store is a pooled tick store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, registers the decimal codec on every connection and
// ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	log.Printf("[postgres] connected")
	return &Store{pool: pool}, nil
}

type tickRow struct {
	TS    int64
	Price decimal.Decimal
}

// ReadTicks returns ticks with from <= ts (and ts <= to when to > 0).
func (s *Store) ReadTicks(ctx context.Context, from, to int64) ([]model.Tick, error) {
	q, args := tickQuery(from, to)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query ticks: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[tickRow])
	if err != nil {
		return nil, fmt.Errorf("postgres scan ticks: %w", err)
	}
	return toTicks(recs), nil
}

func tickQuery(from, to int64) (string, []any) {
	if to > 0 {
		return `SELECT ts, price FROM ticks WHERE ts >= $1 AND ts <= $2 ORDER BY ts, id`, []any{from, to}
	}
	return `SELECT ts, price FROM ticks WHERE ts >= $1 ORDER BY ts, id`, []any{from}
}

func toTicks(recs []tickRow) []model.Tick {
	out := make([]model.Tick, len(recs))
	for i, r := range recs {
		out[i] = model.Tick{Time: r.TS, Price: r.Price.InexactFloat64()}
	}
	return out
}

// WriteTicks bulk-loads ticks with COPY.
func (s *Store) WriteTicks(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"ticks"}, []string{"ts", "price"}, pgx.CopyFromSlice(len(ticks), func(i int) ([]any, error) {
		return []any{ticks[i].Time, decimal.NewFromFloat(ticks[i].Price)}, nil
	}))
	if err != nil {
		return fmt.Errorf("postgres copy ticks: %w", err)
	}
	log.Printf("[postgres] copied %d ticks", n)
	return nil
}

// LastTickTime returns the newest stored tick time, or 0 if there are none.
func (s *Store) LastTickTime(ctx context.Context) (int64, error) {
	var ts *int64
	if err := s.pool.QueryRow(ctx, `SELECT MAX(ts) FROM ticks`).Scan(&ts); err != nil {
		return 0, err
	}
	if ts == nil {
		return 0, nil
	}
	return *ts, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
