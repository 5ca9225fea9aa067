package model

import "time"

// Candle is the close/high/low summary of one completed interval.
// Time is the interval end for bucketed resolutions and the tick time
// for pass-through series.
type Candle struct {
	Time      int64   `json:"time"`
	Close     float64 `json:"close"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Synthetic bool    `json:"synthetic,omitempty"` // gap-filled
}

// TS returns the candle time as UTC.
func (c Candle) TS() time.Time {
	return time.Unix(c.Time, 0).UTC()
}
