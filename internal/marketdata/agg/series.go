package agg

import "macross/internal/model"

// Series is the ordered candle history of one resolution. Insertion order is
// time order; only the most recent entry is ever rewritten (live mode).
type Series struct {
	res     model.Resolution
	candles []model.Candle
}

// NewSeries creates an empty series for res.
func NewSeries(res model.Resolution) *Series {
	return &Series{res: res, candles: make([]model.Candle, 0, 1024)}
}

func (s *Series) Resolution() model.Resolution { return s.res }
func (s *Series) Len() int                     { return len(s.candles) }
func (s *Series) At(i int) model.Candle        { return s.candles[i] }

// Last returns the most recent candle.
func (s *Series) Last() (model.Candle, bool) {
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Candles returns a copy of the series.
func (s *Series) Candles() []model.Candle {
	cp := make([]model.Candle, len(s.candles))
	copy(cp, s.candles)
	return cp
}

// Closes returns the close prices, index-aligned with the series.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// Times returns the candle times, index-aligned with the series.
func (s *Series) Times() []int64 {
	out := make([]int64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Time
	}
	return out
}

// Trim discards the first n candles. Trimming more than Len empties the series.
func (s *Series) Trim(n int) {
	if n <= 0 {
		return
	}
	if n >= len(s.candles) {
		s.candles = s.candles[:0]
		return
	}
	s.candles = append(s.candles[:0], s.candles[n:]...)
}

func (s *Series) push(c model.Candle) { s.candles = append(s.candles, c) }

func (s *Series) replaceLast(c model.Candle) { s.candles[len(s.candles)-1] = c }

func (s *Series) dropFirst() {
	if len(s.candles) > 0 {
		s.candles = s.candles[1:]
	}
}
