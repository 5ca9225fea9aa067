package indicator

import (
	"fmt"
	"strings"

	"macross/internal/model"
)

// Mode selects how the live Engine derives the latest averages.
type Mode string

const (
	// ModeRecompute evaluates the full kernel over the series on every Sync.
	ModeRecompute Mode = "recompute"
	// ModeIncremental feeds closed candles through running averages and
	// peeks the open one.
	ModeIncremental Mode = "incremental"
)

// ParseMode parses "recompute" or "incremental". Empty means recompute.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRecompute:
		return ModeRecompute, nil
	case ModeIncremental:
		return ModeIncremental, nil
	}
	return "", fmt.Errorf("unknown average mode %q", s)
}

// Engine tracks the latest value of one moving average kind for several
// periods over a live candle series whose last candle may still be open.
// Designed for single-goroutine usage; no locks needed.
type Engine struct {
	kind    Kind
	periods []int
	mode    Mode

	kernels map[int][]float64
	avgs    map[int]Average

	committed int64 // time of the newest candle fed through Update
	started   bool
	n         int // series length at the last Sync
	latest    map[int]float64
}

// NewEngine validates periods and builds the per-period state.
func NewEngine(kind Kind, periods []int, mode Mode) (*Engine, error) {
	if len(periods) == 0 {
		return nil, ErrNoPeriods
	}
	e := &Engine{
		kind:    kind,
		periods: periods,
		mode:    mode,
		kernels: make(map[int][]float64, len(periods)),
		avgs:    make(map[int]Average, len(periods)),
		latest:  make(map[int]float64, len(periods)),
	}
	for _, p := range periods {
		w, err := Kernel(kind, p)
		if err != nil {
			return nil, err
		}
		e.kernels[p] = w
		a, err := NewAverage(kind, p)
		if err != nil {
			return nil, err
		}
		e.avgs[p] = a
	}
	return e, nil
}

// Mode returns the configured mode.
func (e *Engine) Mode() Mode { return e.mode }

// Sync brings the engine up to date with candles.
func (e *Engine) Sync(candles []model.Candle) {
	e.n = len(candles)
	if len(candles) == 0 {
		return
	}
	if e.mode == ModeIncremental {
		e.syncIncremental(candles)
		return
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := len(closes) - 1
	for p, w := range e.kernels {
		e.latest[p] = convolveAt(closes, w, last)
	}
}

func (e *Engine) syncIncremental(candles []model.Candle) {
	last := len(candles) - 1
	for _, c := range candles[:last] {
		if e.started && c.Time <= e.committed {
			continue
		}
		for _, a := range e.avgs {
			a.Update(c.Close)
		}
		e.committed = c.Time
		e.started = true
	}

	open := candles[last]
	for p, a := range e.avgs {
		if e.started && open.Time <= e.committed {
			e.latest[p] = a.Value()
			continue
		}
		e.latest[p] = a.Peek(open.Close)
	}
}

// Value returns the latest average for period. ok is false until the series
// holds at least period candles.
func (e *Engine) Value(period int) (v float64, ok bool) {
	v, known := e.latest[period]
	return v, known && e.n >= period
}

// Reset drops all state, e.g. after the feed restarts from scratch.
func (e *Engine) Reset() {
	for _, a := range e.avgs {
		a.Reset()
	}
	e.committed = 0
	e.started = false
	e.n = 0
	e.latest = make(map[int]float64, len(e.periods))
}
