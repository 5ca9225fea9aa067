// Package backtest sweeps every fast/slow period pair of the crossover
// strategy over historical ticks at each configured resolution.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"macross/internal/indicator"
	"macross/internal/marketdata/agg"
	"macross/internal/model"
	"macross/internal/strategy"
)

var (
	// ErrNoTicks is returned when the tick input is empty.
	ErrNoTicks = errors.New("no ticks to backtest")
	// ErrNoResolutions is returned when no resolution is configured.
	ErrNoResolutions = errors.New("no resolutions configured")
)

// Config controls a sweep.
type Config struct {
	Resolutions []model.Resolution
	Periods     []int
	Fee         float64
	ArmGate     bool
	Principal   float64

	// SARFilter only lets a sell through on a parabolic SAR downtrend; buys
	// still fire on the crossing alone.
	SARFilter bool

	// Start, when non-zero, is the unix time the analysis starts at. Each
	// resolution keeps Seconds*max(Periods) of lookback before it so the
	// averages are warm at Start.
	Start int64

	// Workers bounds concurrent pair simulations. <= 0 uses GOMAXPROCS.
	Workers int

	// Progress receives a progress bar per (resolution, kind). nil disables it.
	Progress io.Writer

	// OnSeries, if set, is called once per resolution after aggregation.
	OnSeries func(res model.Resolution, candles, gapFilled int)
	// OnPair, if set, is called for every simulated pair. It may be called
	// from several goroutines.
	OnPair func(res model.Resolution, kind indicator.Kind, r strategy.Result)
}

// ResolutionResult is the sweep output of one resolution.
type ResolutionResult struct {
	Resolution model.Resolution
	Candles    int // after the leading trim
	GapFilled  int
	From, To   int64 // first and last candle time after trim
	Matrices   map[indicator.Kind]*ProfitMatrix
}

// Run aggregates ticks at each resolution, computes all averages and
// simulates every pair of Periods for both kinds.
func Run(ctx context.Context, ticks []model.Tick, cfg Config) ([]ResolutionResult, error) {
	if len(ticks) == 0 {
		return nil, ErrNoTicks
	}
	if len(cfg.Resolutions) == 0 {
		return nil, ErrNoResolutions
	}
	if len(cfg.Periods) == 0 {
		return nil, indicator.ErrNoPeriods
	}
	maxPeriod := 0
	for _, p := range cfg.Periods {
		if p > maxPeriod {
			maxPeriod = p
		}
	}
	pairs := model.AllPairs(cfg.Periods)

	multi, gapCounts := Aggregate(ticks, cfg.Resolutions, cfg.Start, maxPeriod)

	out := make([]ResolutionResult, 0, len(cfg.Resolutions))
	for i, res := range cfg.Resolutions {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		series, gaps := multi.At(i).Series(), gapCounts[i]
		log.Printf("[backtest] %s: %d candles (%d gap-filled)", res, series.Len(), gaps)

		// SAR runs over the untrimmed candles so it is warm at the first
		// simulated one.
		var sellDown []bool
		if cfg.SARFilter {
			sellDown = downtrend(series.Candles())
		}
		avgs, err := indicator.ComputeSeries(series, cfg.Periods, false)
		if err != nil {
			return out, fmt.Errorf("backtest %s: %w", res, err)
		}
		if sellDown != nil {
			sellDown = sellDown[avgs.Trimmed:]
		}
		if cfg.OnSeries != nil {
			cfg.OnSeries(res, series.Len(), gaps)
		}

		rr := ResolutionResult{
			Resolution: res,
			Candles:    series.Len(),
			GapFilled:  gaps,
			Matrices:   make(map[indicator.Kind]*ProfitMatrix, len(indicator.Kinds)),
		}
		if last, ok := series.Last(); ok {
			rr.From = series.At(0).Time
			rr.To = last.Time
		}

		prices, times := series.Closes(), series.Times()
		for _, kind := range indicator.Kinds {
			m, err := sweep(ctx, cfg, res, kind, pairs, maxPeriod, avgs, prices, times, sellDown)
			if err != nil {
				return out, err
			}
			rr.Matrices[kind] = m
		}
		out = append(out, rr)
	}
	return out, nil
}

// Aggregate builds every resolution's series in one pass over ticks. When
// start is non-zero each resolution only sees ticks from
// start - Seconds*maxPeriod on. The second result holds the gap-filled
// candle count per resolution.
func Aggregate(ticks []model.Tick, res []model.Resolution, start int64, maxPeriod int) (*agg.Multi, []int) {
	m := agg.NewMulti(res)
	gaps := make([]int, len(res))
	from := make([]int64, len(res))
	for i, r := range res {
		i := i
		m.At(i).OnGapFill = func(n int) { gaps[i] += n }
		if start > 0 {
			from[i] = start - r.Seconds*int64(maxPeriod)
		}
	}
	for _, t := range ticks {
		for i := range res {
			if t.Time >= from[i] {
				m.At(i).Append(t)
			}
		}
	}
	return m, gaps
}

func sweep(ctx context.Context, cfg Config, res model.Resolution, kind indicator.Kind, pairs []model.PeriodPair,
	maxPeriod int, avgs *indicator.Averages, prices []float64, times []int64, sellDown []bool) (*ProfitMatrix, error) {

	sim := strategy.Simulator{Principal: cfg.Principal, Fee: cfg.Fee, ArmGate: cfg.ArmGate, SellDown: sellDown}
	results := make([]strategy.Result, len(pairs))

	var bar *progressbar.ProgressBar
	if cfg.Progress != nil {
		bar = newProgressBar(cfg.Progress, len(pairs), fmt.Sprintf("%s %s", res, kind))
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := sim.Run(pair, avgs.Get(kind, pair.Fast), avgs.Get(kind, pair.Slow), prices, times, nil)
			if err != nil {
				return fmt.Errorf("backtest %s %s: %w", res, kind, err)
			}
			results[i] = r
			if cfg.OnPair != nil {
				cfg.OnPair(res, kind, r)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cfg.Progress)
	}

	m := NewProfitMatrix(res, kind, maxPeriod)
	for _, r := range results {
		m.Set(r)
	}
	return m, nil
}

// downtrend marks every candle that closed under a parabolic SAR downtrend.
// It is never nil so a filtered sweep stays filtered on short series.
func downtrend(candles []model.Candle) []bool {
	out := make([]bool, len(candles))
	s := indicator.ParabolicSAR(candles, indicator.SARStart, indicator.SARStep, indicator.SARMax)
	for i, up := range s.Up {
		out[i] = !up
	}
	return out
}

func newProgressBar(w io.Writer, max int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
