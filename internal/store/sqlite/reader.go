package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"macross/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backtests and replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadTicks returns ticks with from <= ts (and ts <= to when to > 0) in
// insertion order within each second.
func (r *Reader) ReadTicks(ctx context.Context, from, to int64) ([]model.Tick, error) {
	q := `SELECT ts, price FROM ticks WHERE ts >= ?`
	args := []any{from}
	if to > 0 {
		q += ` AND ts <= ?`
		args = append(args, to)
	}
	q += ` ORDER BY ts ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		if err := rows.Scan(&t.Time, &t.Price); err != nil {
			return nil, fmt.Errorf("sqlite scan ticks: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// ReadCandles returns stored candles of one resolution newer than after.
func (r *Reader) ReadCandles(ctx context.Context, resolution string, after int64) ([]model.Candle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, close, high, low, synthetic
		FROM candles
		WHERE resolution = ? AND ts > ?
		ORDER BY ts ASC
	`, resolution, after)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Time, &c.Close, &c.High, &c.Low, &c.Synthetic); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
