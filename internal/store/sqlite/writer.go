package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"macross/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/ticks.db"

	// OnCommit, if set, observes every batch commit latency.
	OnCommit func(d time.Duration)
}

// CandleRow is a candle tagged with the resolution it belongs to.
type CandleRow struct {
	Resolution string
	model.Candle
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db       *sql.DB
	onCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, onCommit: cfg.OnCommit}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			ts    INTEGER NOT NULL,
			price REAL    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS ticks_ts ON ticks (ts);

		CREATE TABLE IF NOT EXISTS candles (
			resolution TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			close      REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			synthetic  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (resolution, ts)
		);
	`)
	return err
}

// WriteTicks inserts ticks in a single transaction, preserving their order.
func (w *Writer) WriteTicks(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ticks (ts, price) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.ExecContext(ctx, t.Time, t.Price); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert tick %d: %w", t.Time, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if w.onCommit != nil {
		w.onCommit(time.Since(start))
	}
	return nil
}

// LastTickTime returns the newest stored tick time, or 0 if there are none.
func (w *Writer) LastTickTime(ctx context.Context) (int64, error) {
	var ts sql.NullInt64
	if err := w.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM ticks`).Scan(&ts); err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Run reads ticks from tickCh and inserts them in batched transactions.
// Flushes every batch size ticks OR every flush delay, whichever first.
// Blocks until ctx is cancelled or tickCh is closed.
func (w *Writer) Run(ctx context.Context, tickCh <-chan model.Tick) {
	batch := make([]model.Tick, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// ctx may already be cancelled on shutdown; the final flush still commits
		if err := w.WriteTicks(context.Background(), batch); err != nil {
			log.Printf("[sqlite] tick batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case t, ok := <-tickCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, t)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteCandles upserts candles. The open live candle is rewritten in place
// until it closes.
func (w *Writer) WriteCandles(ctx context.Context, rows []CandleRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (resolution, ts, close, high, low, synthetic)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Resolution, r.Time, r.Close, r.High, r.Low, r.Synthetic); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
