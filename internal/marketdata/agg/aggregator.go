// Package agg turns an irregular tick stream into fixed-resolution candle series.
//
// A candle for an interval is only written once a tick from a later interval
// proves the interval has closed, so the aggregator carries the latest tick of
// the open interval in an explicit pending slot. The same state drives the
// live mode, where the open interval is exposed as the last candle and
// rewritten in place until it closes.
package agg

import "macross/internal/model"

// Aggregator buckets ticks into one resolution. Not safe for concurrent use;
// a single owner feeds it ticks.
type Aggregator struct {
	series *Series
	res    int64

	started     bool
	first       int64      // time of the very first tick
	pending     model.Tick // latest tick of the open interval
	intervalEnd int64      // end of the open interval; unused when res == 0
	high, low   float64    // extrema of the open interval

	last         int64 // time of the newest accepted tick
	lastRecorded bool  // whether that tick is reflected in the series
	live         bool  // the series tail is the open interval

	// MaxLen bounds the live series: once the open slot exists, every newly
	// opened slot drops the oldest candle. 0 = unbounded.
	MaxLen int

	// Hooks (optional, set externally)
	OnDroppedTick func(t model.Tick)   // tick older than the first tick
	OnGapFill     func(n int)          // synthetic candles written
	OnCandle      func(c model.Candle) // candle finalized
}

// New creates an Aggregator for res.
func New(res model.Resolution) *Aggregator {
	return &Aggregator{
		series: NewSeries(res),
		res:    res.Seconds,
	}
}

// Series returns the candle series owned by this aggregator.
func (a *Aggregator) Series() *Series { return a.series }

// Pending returns the not yet written tick of the open interval.
func (a *Aggregator) Pending() (model.Tick, bool) {
	return a.pending, a.started && !a.lastRecorded
}

// nextEnd returns the end of the interval containing ts.
func (a *Aggregator) nextEnd(ts int64) int64 {
	return (ts/a.res + 1) * a.res
}

func (a *Aggregator) start(t model.Tick) {
	a.started = true
	a.first = t.Time
	a.last = t.Time
	a.roll(t)
}

// roll opens a new interval seeded with t.
func (a *Aggregator) roll(t model.Tick) {
	a.pending = t
	a.high, a.low = t.Price, t.Price
	if a.res > 0 {
		a.intervalEnd = a.nextEnd(t.Time)
	}
}

func (a *Aggregator) observe(t model.Tick) {
	a.pending = t
	if t.Price > a.high {
		a.high = t.Price
	}
	if t.Price < a.low {
		a.low = t.Price
	}
}

func (a *Aggregator) openCandle() model.Candle {
	return model.Candle{Time: a.intervalEnd, Close: a.pending.Price, High: a.high, Low: a.low}
}

func (a *Aggregator) emit(c model.Candle) {
	a.series.push(c)
	if a.OnCandle != nil {
		a.OnCandle(c)
	}
}

func (a *Aggregator) tooOld(t model.Tick) bool {
	if t.Time >= a.first {
		return false
	}
	if a.OnDroppedTick != nil {
		a.OnDroppedTick(t)
	}
	return true
}

// Append consumes a tick in batch/backfill mode.
func (a *Aggregator) Append(t model.Tick) {
	if !a.started {
		a.start(t)
	} else if a.tooOld(t) {
		return
	}

	if a.res == 0 {
		a.emit(model.Candle{Time: t.Time, Close: t.Price, High: t.Price, Low: t.Price})
		a.pending = t
		a.last, a.lastRecorded = t.Time, true
		return
	}

	if t.Time >= a.intervalEnd {
		a.emit(a.openCandle())
		a.fillGap(t.Time)
		a.roll(t)
		a.last, a.lastRecorded = t.Time, false
		return
	}

	a.observe(t)
	if t.Time > a.last {
		a.last = t.Time
	}
	a.lastRecorded = false
}

// fillGap writes flat candles at the last close for every interval that
// elapsed between the one just written and the one containing ts.
func (a *Aggregator) fillGap(ts int64) {
	end := a.nextEnd(ts)
	price := a.pending.Price
	n := 0
	for e := a.intervalEnd + a.res; e < end; e += a.res {
		a.emit(model.Candle{Time: e, Close: price, High: price, Low: price, Synthetic: true})
		n++
	}
	if n > 0 && a.OnGapFill != nil {
		a.OnGapFill(n)
	}
}

// Update consumes a tick in live mode. The open interval is kept as the last
// candle and overwritten in place; each call grows the series by at most one
// candle, so a jump over several intervals opens one slot and leaves the
// skipped intervals unfilled. Ticks at or before the newest recorded tick are
// ignored.
func (a *Aggregator) Update(t model.Tick) {
	if !a.started {
		a.start(t)
		a.openSlot(t)
		return
	}
	if a.tooOld(t) {
		return
	}
	if t.Time < a.last || (t.Time == a.last && a.lastRecorded) {
		return
	}

	if a.res == 0 {
		a.openSlot(t)
		return
	}

	if t.Time >= a.intervalEnd {
		if !a.live {
			// backfill left the interval pending and GoLive was not called;
			// close it first
			a.emit(a.openCandle())
			a.roll(t)
			a.last, a.lastRecorded = t.Time, false
			return
		}
		if c, ok := a.series.Last(); ok && a.OnCandle != nil {
			a.OnCandle(c)
		}
		a.roll(t)
		a.openSlot(t)
		return
	}

	a.observe(t)
	if a.live {
		a.series.replaceLast(a.openCandle())
	} else {
		a.series.push(a.openCandle())
		a.live = true
	}
	a.last, a.lastRecorded = t.Time, true
}

// GoLive exposes the pending interval of a backfilled series as the open
// live slot, so the first live tick is seen by readers even when it closes
// that interval. No-op before the first tick or once live.
func (a *Aggregator) GoLive() {
	if !a.started || a.live {
		return
	}
	a.live = true
	if a.res == 0 || a.lastRecorded {
		return
	}
	a.series.push(a.openCandle())
	a.lastRecorded = true
}

// openSlot appends a new live slot for t, shifting out the oldest candle when
// the series is bounded and a live slot already existed.
func (a *Aggregator) openSlot(t model.Tick) {
	c := model.Candle{Time: t.Time, Close: t.Price, High: t.Price, Low: t.Price}
	if a.res > 0 {
		c = a.openCandle()
	}
	a.series.push(c)
	if a.live && a.MaxLen > 0 && a.series.Len() > a.MaxLen {
		a.series.dropFirst()
	}
	a.live = true
	a.pending = t
	a.last, a.lastRecorded = t.Time, true
}
