package execution

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		order_id    TEXT NOT NULL,
		action      TEXT NOT NULL,
		ts          INTEGER NOT NULL,
		price       REAL NOT NULL,
		dest_sum    REAL NOT NULL,
		fee         REAL NOT NULL,
		bal_a       REAL NOT NULL,
		bal_b       REAL NOT NULL,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id);
	CREATE INDEX IF NOT EXISTS idx_fills_ts ON fills(ts);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill under runID.
func (j *Journal) RecordFill(ctx context.Context, runID string, fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO fills (run_id, order_id, action, ts, price, dest_sum, fee, bal_a, bal_b, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		fill.OrderID,
		string(fill.Action),
		fill.Time,
		fill.Price,
		fill.Sum,
		fill.Fee,
		fill.A,
		fill.B,
		fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// TradeRecord represents a row from the fills table.
type TradeRecord struct {
	ID       int64   `json:"id"`
	RunID    string  `json:"run_id"`
	OrderID  string  `json:"order_id"`
	Action   string  `json:"action"`
	Time     int64   `json:"time"`
	Price    float64 `json:"price"`
	Sum      float64 `json:"sum"`
	Fee      float64 `json:"fee"`
	A        float64 `json:"a"`
	B        float64 `json:"b"`
	FilledAt string  `json:"filled_at"`
}

// GetTrades returns the last N fills, newest first. An empty runID returns
// fills from every run; limit <= 0 returns all of them.
func (j *Journal) GetTrades(ctx context.Context, runID string, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, order_id, action, ts, price, dest_sum, fee, bal_a, bal_b, filled_at
		 FROM fills WHERE (? = '' OR run_id = ?) ORDER BY id DESC LIMIT ?`, runID, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.RunID, &t.OrderID, &t.Action, &t.Time, &t.Price,
			&t.Sum, &t.Fee, &t.A, &t.B, &t.FilledAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
