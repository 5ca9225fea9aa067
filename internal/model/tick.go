package model

import "time"

// Tick is a single trade observation. Time is unix seconds.
type Tick struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// TS returns the tick time as UTC.
func (t Tick) TS() time.Time {
	return time.Unix(t.Time, 0).UTC()
}
