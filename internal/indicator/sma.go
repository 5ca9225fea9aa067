package indicator

import "strconv"

// SMA is a running simple moving average over a preallocated circular buffer.
type SMA struct {
	period int
	buf    []float64
	idx    int // next write position; oldest sample once full
	count  int
	sum    float64
}

// NewSMA creates a new SMA with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA_" + strconv.Itoa(s.period) }

func (s *SMA) Update(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count%resyncEvery == 0 {
		s.sum = 0
		for _, v := range s.buf {
			s.sum += v
		}
	}
}

func (s *SMA) Value() float64 { return s.sum / float64(s.period) }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be with an additional price without mutating state.
func (s *SMA) Peek(price float64) float64 {
	if s.count < s.period {
		return (s.sum + price) / float64(s.period)
	}
	return (s.sum - s.buf[s.idx] + price) / float64(s.period)
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
