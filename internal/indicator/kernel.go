package indicator

import (
	"fmt"
	"math"
)

// Kernel returns the normalized FIR weights for kind and period. Index 0
// weights the current sample, index period-1 the oldest.
//
// Simple is uniform. Exponential is exp(linspace(-1, 0, period)) reversed so
// the newest sample gets the largest weight.
func Kernel(kind Kind, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
	}

	w := make([]float64, period)
	switch kind {
	case Simple:
		for i := range w {
			w[i] = 1
		}
	case Exponential:
		for i := range w {
			w[period-1-i] = math.Exp(linspace(-1, 0, period, i))
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var sum float64
	for _, v := range w {
		sum += v
	}
	for i := range w {
		w[i] /= sum
	}
	return w, nil
}

// linspace returns the i-th of n evenly spaced points over [start, stop].
func linspace(start, stop float64, n, i int) float64 {
	if n == 1 {
		return start
	}
	if i == n-1 {
		return stop
	}
	return start + float64(i)*(stop-start)/float64(n-1)
}

// Convolve applies the causal filter w to x and returns len(x) values:
// out[n] = sum_k w[k] * x[n-k], with samples before the series start as zero.
func Convolve(x, w []float64) []float64 {
	out := make([]float64, len(x))
	for n := range x {
		out[n] = convolveAt(x, w, n)
	}
	return out
}

func convolveAt(x, w []float64, n int) float64 {
	var acc float64
	for k := 0; k < len(w) && k <= n; k++ {
		acc += w[k] * x[n-k]
	}
	return acc
}

// Key addresses one average array.
type Key struct {
	Kind   Kind
	Period int
}

func (k Key) String() string { return fmt.Sprintf("%s_%d", k.Kind, k.Period) }

// Averages holds every (kind, period) array for one candle series. All arrays
// share Len and are index-aligned with the (trimmed) series.
type Averages struct {
	values  map[Key][]float64
	Len     int
	Trimmed int // leading elements discarded from the source series
}

// Get returns the array for kind and period, or nil if it was not computed.
func (a *Averages) Get(kind Kind, period int) []float64 {
	return a.values[Key{Kind: kind, Period: period}]
}

// keys returns the computed keys.
func (a *Averages) keys() []Key {
	keys := make([]Key, 0, len(a.values))
	for k := range a.values {
		keys = append(keys, k)
	}
	return keys
}

// Compute convolves closes with the simple and exponential kernels for every
// period. Unless live, the first max(periods) values of every array are
// discarded since their windows are incomplete; live keeps the full length.
// A series no longer than max(periods) yields empty arrays, not an error.
func Compute(closes []float64, periods []int, live bool) (*Averages, error) {
	if len(periods) == 0 {
		return nil, ErrNoPeriods
	}

	maxPeriod := 0
	for _, p := range periods {
		if p < 1 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidPeriod, p)
		}
		if p > maxPeriod {
			maxPeriod = p
		}
	}

	trim := 0
	if !live {
		trim = maxPeriod
		if trim > len(closes) {
			trim = len(closes)
		}
	}

	out := &Averages{
		values:  make(map[Key][]float64, len(periods)*len(Kinds)),
		Len:     len(closes) - trim,
		Trimmed: trim,
	}
	for _, kind := range Kinds {
		for _, p := range periods {
			w, err := Kernel(kind, p)
			if err != nil {
				return nil, err
			}
			full := Convolve(closes, w)
			out.values[Key{Kind: kind, Period: p}] = full[trim:]
		}
	}
	return out, nil
}

// PriceSeries is a candle series whose leading candles can be discarded.
type PriceSeries interface {
	Closes() []float64
	Trim(n int)
}

// ComputeSeries runs Compute over s and, unless live, applies the same
// leading trim to s so averages and candles stay index-aligned.
func ComputeSeries(s PriceSeries, periods []int, live bool) (*Averages, error) {
	out, err := Compute(s.Closes(), periods, live)
	if err != nil {
		return nil, err
	}
	if !live {
		s.Trim(out.Trimmed)
	}
	return out, nil
}
