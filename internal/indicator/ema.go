package indicator

import (
	"math"
	"strconv"
)

// EMA is the incremental form of the exponential kernel: a finite window of
// period samples weighted r^k (k = age, r = e^(-1/(period-1))), normalized.
//
//	acc_n = x_n + r*acc_(n-1) - r^period * x_(n-period)
//
// O(1) per update; the window is kept to drop the expiring sample.
type EMA struct {
	period int
	r      float64 // per-step decay
	rp     float64 // r^period, weight of the expiring sample
	norm   float64 // sum of r^k for k < period

	buf   []float64
	idx   int
	count int
	acc   float64
}

// NewEMA creates a new EMA with the given period.
func NewEMA(period int) *EMA {
	e := &EMA{
		period: period,
		buf:    make([]float64, period),
	}
	if period > 1 {
		e.r = math.Exp(-1 / float64(period-1))
	}
	e.rp = math.Pow(e.r, float64(period))
	w := 1.0
	for k := 0; k < period; k++ {
		e.norm += w
		w *= e.r
	}
	return e
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(price float64) {
	e.acc = e.next(price)
	e.buf[e.idx] = price
	e.idx = (e.idx + 1) % e.period
	e.count++

	if e.count%resyncEvery == 0 {
		e.resync()
	}
}

func (e *EMA) next(price float64) float64 {
	acc := price + e.r*e.acc
	if e.count >= e.period {
		acc -= e.rp * e.buf[e.idx]
	}
	return acc
}

// resync rebuilds the accumulator from the window, newest first.
func (e *EMA) resync() {
	var acc float64
	w := 1.0
	for k := 0; k < e.period && k < e.count; k++ {
		i := (e.idx - 1 - k + e.period) % e.period
		acc += w * e.buf[i]
		w *= e.r
	}
	e.acc = acc
}

func (e *EMA) Value() float64 { return e.acc / e.norm }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Peek computes what Value() would be with an additional price without mutating state.
func (e *EMA) Peek(price float64) float64 {
	return e.next(price) / e.norm
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.idx = 0
	e.count = 0
	e.acc = 0
	for i := range e.buf {
		e.buf[i] = 0
	}
}
