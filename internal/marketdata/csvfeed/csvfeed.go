// Package csvfeed reads and writes trade history in the bitcoincharts CSV
// layout: one trade per line, "unix_seconds,price,amount".
package csvfeed

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"macross/internal/model"
)

// ErrEmptyFile is returned when a file holds no trades.
var ErrEmptyFile = errors.New("csv file is empty")

// Lookback is the earliest tick time needed so the slowest average is fully
// warmed at start for a resolution of resSeconds.
func Lookback(start, resSeconds int64, maxPeriod int) int64 {
	return start - resSeconds*int64(maxPeriod)
}

// Read parses trades from r keeping those with time > from. Reading stops
// after the first trade at or past to; to <= 0 reads to the end.
func Read(ctx context.Context, r io.Reader, from, to int64) ([]model.Tick, error) {
	cr := newReader(r)
	var ticks []model.Tick
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if line%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tk, ok, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if !ok || tk.Time <= from {
			continue
		}
		ticks = append(ticks, tk)
		if to > 0 && tk.Time >= to {
			break
		}
	}
	return ticks, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<16))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true
	return cr
}

// parseRecord returns ok=false for blank lines and headers.
func parseRecord(rec []string) (model.Tick, bool, error) {
	if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
		return model.Tick{}, false, nil
	}
	if len(rec) < 2 {
		return model.Tick{}, false, fmt.Errorf("expected time,price got %d fields", len(rec))
	}
	ts, err := parseTime(rec[0])
	if err != nil {
		if _, ferr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64); ferr != nil {
			return model.Tick{}, false, nil // header
		}
		return model.Tick{}, false, err
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil {
		return model.Tick{}, false, fmt.Errorf("price %q: %w", rec[1], err)
	}
	return model.Tick{Time: ts, Price: price}, true, nil
}

func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	return int64(math.Floor(f)), nil
}

// Reader is a model.TickReader over a CSV file. Every ReadTicks call scans
// the file from the top.
type Reader struct {
	path string
}

// Open checks that path exists and returns a Reader for it.
func Open(path string) (*Reader, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	return &Reader{path: path}, nil
}

// ReadTicks returns trades with from <= time and, when to > 0, time <= to.
func (r *Reader) ReadTicks(ctx context.Context, from, to int64) ([]model.Tick, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ticks, err := Read(ctx, f, from-1, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}
	if to > 0 && len(ticks) > 0 && ticks[len(ticks)-1].Time > to {
		ticks = ticks[:len(ticks)-1]
	}
	log.Printf("[csvfeed] read %d ticks from %s", len(ticks), r.path)
	return ticks, nil
}

// Close is a no-op; files are opened per read.
func (r *Reader) Close() error { return nil }

// Write appends ticks as "time,price" lines.
func Write(w io.Writer, ticks []model.Tick) error {
	cw := csv.NewWriter(w)
	for _, t := range ticks {
		if err := cw.Write([]string{
			strconv.FormatInt(t.Time, 10),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
