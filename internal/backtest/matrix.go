package backtest

import (
	"math"
	"sort"

	"macross/internal/indicator"
	"macross/internal/model"
	"macross/internal/strategy"
)

// ProfitMatrix holds realized profit percent per (fast, slow) pair for one
// resolution and moving average kind. Pairs without a completed sell are
// masked and excluded from Min, Mean and Max.
type ProfitMatrix struct {
	Resolution model.Resolution
	Kind       indicator.Kind

	size    int
	profit  []float64 // size*size, NaN = masked
	results map[model.PeriodPair]strategy.Result
}

// NewProfitMatrix allocates a fully masked matrix addressable up to maxPeriod.
func NewProfitMatrix(res model.Resolution, kind indicator.Kind, maxPeriod int) *ProfitMatrix {
	size := maxPeriod + 1
	m := &ProfitMatrix{
		Resolution: res,
		Kind:       kind,
		size:       size,
		profit:     make([]float64, size*size),
		results:    make(map[model.PeriodPair]strategy.Result),
	}
	for i := range m.profit {
		m.profit[i] = math.NaN()
	}
	return m
}

// Size is the side length of the matrix (max period + 1).
func (m *ProfitMatrix) Size() int { return m.size }

// Set stores r. Only results with data unmask their cell.
func (m *ProfitMatrix) Set(r strategy.Result) {
	m.results[r.Pair] = r
	if !r.HasData || !m.inside(r.Pair.Fast, r.Pair.Slow) {
		return
	}
	m.profit[r.Pair.Fast*m.size+r.Pair.Slow] = r.Profit
}

func (m *ProfitMatrix) inside(fast, slow int) bool {
	return fast >= 0 && slow >= 0 && fast < m.size && slow < m.size
}

// At returns the profit for (fast, slow); ok is false for masked cells.
func (m *ProfitMatrix) At(fast, slow int) (float64, bool) {
	if !m.inside(fast, slow) {
		return 0, false
	}
	v := m.profit[fast*m.size+slow]
	return v, !math.IsNaN(v)
}

// Result returns the full simulation result for pair.
func (m *ProfitMatrix) Result(pair model.PeriodPair) (strategy.Result, bool) {
	r, ok := m.results[pair]
	return r, ok
}

// Results returns every stored result ordered by (fast, slow).
func (m *ProfitMatrix) Results() []strategy.Result {
	out := make([]strategy.Result, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pair.Fast != out[j].Pair.Fast {
			return out[i].Pair.Fast < out[j].Pair.Fast
		}
		return out[i].Pair.Slow < out[j].Pair.Slow
	})
	return out
}

// Summary is the reduction over unmasked cells.
type Summary struct {
	Min, Mean, Max float64
	Count          int // unmasked cells
	Best           model.PeriodPair
}

// Summarize reduces the unmasked cells. ok is false when every cell is masked.
func (m *ProfitMatrix) Summarize() (s Summary, ok bool) {
	var sum float64
	for i, v := range m.profit {
		if math.IsNaN(v) {
			continue
		}
		if s.Count == 0 || v < s.Min {
			s.Min = v
		}
		if s.Count == 0 || v > s.Max {
			s.Max = v
			s.Best = model.PeriodPair{Fast: i / m.size, Slow: i % m.size}
		}
		sum += v
		s.Count++
	}
	if s.Count == 0 {
		return Summary{}, false
	}
	s.Mean = sum / float64(s.Count)
	return s, true
}
