// Package indicator computes simple and exponential moving averages over
// candle close prices.
//
// The batch path (Compute) convolves the whole series with a normalized
// period-length kernel. The incremental types (SMA, EMA) reproduce the same
// values with O(1) work per price and are used by the live Engine when it
// runs in ModeIncremental.
package indicator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPeriod is returned for periods below 1.
	ErrInvalidPeriod = errors.New("invalid moving average period")
	// ErrUnknownKind is returned for moving average types other than simple/exp.
	ErrUnknownKind = errors.New("unknown moving average type")
	// ErrNoPeriods is returned when no periods are configured.
	ErrNoPeriods = errors.New("no moving average periods configured")
)

// Kind selects the moving average kernel.
type Kind string

const (
	Simple      Kind = "simple"
	Exponential Kind = "exp"
)

// Kinds lists every supported kind in report order.
var Kinds = []Kind{Simple, Exponential}

// ParseKind accepts "simple"/"sma" and "exp"/"ema".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "sma":
		return Simple, nil
	case "exp", "ema", "exponential":
		return Exponential, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Average is an incrementally updated moving average.
type Average interface {
	// Name returns the average name (e.g., "SMA_20", "EMA_9").
	Name() string

	// Update feeds the next close price.
	Update(price float64)

	// Value returns the current average. Before Ready the missing samples
	// count as zero, matching the batch convolution.
	Value() float64

	// Ready returns true once a full window has been seen.
	Ready() bool

	// Peek computes what Value() would be if price were added next,
	// WITHOUT mutating internal state. Used for the open live candle.
	Peek(price float64) float64

	// Reset clears all state.
	Reset()
}

// NewAverage builds the incremental average for kind and period.
func NewAverage(kind Kind, period int) (Average, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
	}
	switch kind {
	case Simple:
		return NewSMA(period), nil
	case Exponential:
		return NewEMA(period), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// resyncEvery bounds floating-point drift of the running sums: after this many
// updates the accumulator is rebuilt from the window.
const resyncEvery = 1024
