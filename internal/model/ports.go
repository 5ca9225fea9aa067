package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the backtest and live loop from concrete
// storage implementations (SQLite, Postgres, Redis, CSV).

// TickReader loads historical ticks ordered by time ascending.
// from/to are inclusive unix seconds; to <= 0 means no upper bound.
type TickReader interface {
	ReadTicks(ctx context.Context, from, to int64) ([]Tick, error)
	Close() error
}

// TickWriter persists raw ticks.
type TickWriter interface {
	WriteTicks(ctx context.Context, ticks []Tick) error
	LastTickTime(ctx context.Context) (int64, error)
	Close() error
}

// TickSource is polled by the live loop for ticks that arrived since the
// previous call. An error means nothing was fetched.
type TickSource interface {
	Fetch(ctx context.Context) ([]Tick, error)
}
