// Package report renders sweep results: the one-line profit summary per
// (resolution, kind), a per-pair statistics text file and the profit matrix
// as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"macross/internal/backtest"
	"macross/internal/indicator"
	"macross/internal/model"
)

// SummaryLine is the console summary for one matrix.
func SummaryLine(res model.Resolution, kind indicator.Kind, m *backtest.ProfitMatrix) string {
	s, ok := m.Summarize()
	if !ok {
		return fmt.Sprintf("%s %s profit/lost: no data", res, kind)
	}
	return fmt.Sprintf("%s %s profit/lost: min %.2f%% av %.2f%% max %.2f%%", res, kind, s.Min, s.Mean, s.Max)
}

// Period formats the analysed interval for titles and file names.
func Period(from, to int64) string {
	const layout = "2006-01-02 15:04"
	return time.Unix(from, 0).UTC().Format(layout) + " - " + time.Unix(to, 0).UTC().Format(layout)
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func pct(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

// WriteStats writes the statistics of every pair with data, grouped by kind.
func WriteStats(w io.Writer, rr backtest.ResolutionResult) error {
	ew := &errWriter{w: w}
	ew.printf("%s  %s  (%d candles, %d gap-filled)\n", rr.Resolution, Period(rr.From, rr.To), rr.Candles, rr.GapFilled)

	for _, kind := range indicator.Kinds {
		m, ok := rr.Matrices[kind]
		if !ok {
			continue
		}
		ew.printf("\n%s\n", SummaryLine(rr.Resolution, kind, m))
		for _, r := range m.Results() {
			if !r.HasData {
				continue
			}
			st := r.Stats
			ew.printf("\n%s %s (%d, %d)\n", rr.Resolution, kind, r.Pair.Fast, r.Pair.Slow)
			ew.printf("  end sum %s  profit %s  transactions %d  round trips %d\n", money(r.EndSum), pct(r.Profit), r.Transactions, st.Sells())
			ew.printf("  won %d  sum %s  biggest %s\n", st.WonCount, money(st.WonSum), pct(st.BiggestWin))
			ew.printf("  lost %d  sum %s  biggest %s\n", st.LostCount, money(st.LostSum), pct(st.BiggestLoss))
			ew.printf("  max consecutive wins %d (%s)  losses %d (%s)\n",
				st.MaxWinStreak, pct(st.MaxConsecutiveProfit), st.MaxLossStreak, pct(st.MaxConsecutiveLoss))
		}
	}
	return ew.err
}

// WriteMatrixCSV writes profit percent with fast periods as rows and slow
// periods as columns. Masked cells are empty.
func WriteMatrixCSV(w io.Writer, m *backtest.ProfitMatrix, periods []int) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(periods)+1)
	header = append(header, "fast\\slow")
	for _, p := range periods {
		header = append(header, strconv.Itoa(p))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(periods)+1)
	for _, fast := range periods {
		row[0] = strconv.Itoa(fast)
		for j, slow := range periods {
			row[j+1] = ""
			if v, ok := m.At(fast, slow); ok {
				row[j+1] = strconv.FormatFloat(v, 'f', 4, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFiles writes "stats-<res> <period>.txt" and one
// "matrix-<res>-<kind> <period>.csv" per kind into dir and returns the paths.
func WriteFiles(dir string, rr backtest.ResolutionResult, periods []int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	period := Period(rr.From, rr.To)
	var paths []string

	statsPath := filepath.Join(dir, fmt.Sprintf("stats-%s %s.txt", rr.Resolution, period))
	if err := writeFile(statsPath, func(w io.Writer) error { return WriteStats(w, rr) }); err != nil {
		return paths, err
	}
	paths = append(paths, statsPath)

	for _, kind := range indicator.Kinds {
		m, ok := rr.Matrices[kind]
		if !ok {
			continue
		}
		p := filepath.Join(dir, fmt.Sprintf("matrix-%s-%s %s.csv", rr.Resolution, kind, period))
		if err := writeFile(p, func(w io.Writer) error { return WriteMatrixCSV(w, m, periods) }); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
