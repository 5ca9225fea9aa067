package agg

import "macross/internal/model"

// Multi fans one tick stream out to an independent Aggregator per resolution.
type Multi struct {
	res  []model.Resolution
	aggs []*Aggregator
}

// NewMulti creates one Aggregator per resolution, in the given order.
func NewMulti(res []model.Resolution) *Multi {
	m := &Multi{res: res, aggs: make([]*Aggregator, len(res))}
	for i, r := range res {
		m.aggs[i] = New(r)
	}
	return m
}

// Append feeds t to every resolution in batch mode.
func (m *Multi) Append(t model.Tick) {
	for _, a := range m.aggs {
		a.Append(t)
	}
}

// Update feeds t to every resolution in live mode.
func (m *Multi) Update(t model.Tick) {
	for _, a := range m.aggs {
		a.Update(t)
	}
}

// Resolutions returns the configured resolutions.
func (m *Multi) Resolutions() []model.Resolution { return m.res }

// At returns the aggregator of the i-th resolution.
func (m *Multi) At(i int) *Aggregator { return m.aggs[i] }

// Get returns the aggregator for the resolution with the given label, or nil.
func (m *Multi) Get(label string) *Aggregator {
	for i, r := range m.res {
		if r.Label == label {
			return m.aggs[i]
		}
	}
	return nil
}

// Each calls fn for every resolution's aggregator in order.
func (m *Multi) Each(fn func(r model.Resolution, a *Aggregator)) {
	for i, r := range m.res {
		fn(r, m.aggs[i])
	}
}
