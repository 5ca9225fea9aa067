package strategy

import (
	"time"

	"macross/internal/model"
)

// DefaultGateFraction is the share of one resolution a signal must persist
// before its action fires.
const DefaultGateFraction = 1.0 / 6

// GateChange reports what an observation did to a gate.
type GateChange int

const (
	GateUnchanged GateChange = iota
	GateArmed
	GateCancelled
)

func (c GateChange) String() string {
	switch c {
	case GateArmed:
		return "armed"
	case GateCancelled:
		return "cancelled"
	}
	return "unchanged"
}

// Gate debounces one action. A matching signal arms a trigger
// Resolution*Fraction in the future; any other signal cancels it.
type Gate struct {
	Action     Action
	Resolution model.Resolution
	Fraction   float64

	triggerAt time.Time
	pending   bool
}

// NewGate builds a gate for action. fraction <= 0 selects DefaultGateFraction.
func NewGate(action Action, res model.Resolution, fraction float64) *Gate {
	if fraction <= 0 {
		fraction = DefaultGateFraction
	}
	return &Gate{Action: action, Resolution: res, Fraction: fraction}
}

// Delay is how long a matching signal must hold.
func (g *Gate) Delay() time.Duration {
	return time.Duration(float64(g.Resolution.Seconds) * g.Fraction * float64(time.Second))
}

// Observe feeds the latest signal. ActionNone leaves the gate untouched.
func (g *Gate) Observe(signal Action, now time.Time) GateChange {
	switch {
	case signal == ActionNone:
		return GateUnchanged
	case signal != g.Action && g.pending:
		g.Reset()
		return GateCancelled
	case signal == g.Action && !g.pending:
		g.triggerAt = now.Add(g.Delay())
		g.pending = true
		return GateArmed
	}
	return GateUnchanged
}

// Ready reports whether now is past the armed trigger time.
func (g *Gate) Ready(now time.Time) bool {
	return g.pending && now.After(g.triggerAt)
}

// TriggerAt returns the armed trigger time; ok is false while disarmed.
func (g *Gate) TriggerAt() (t time.Time, ok bool) {
	return g.triggerAt, g.pending
}

// Reset disarms the gate.
func (g *Gate) Reset() {
	g.triggerAt = time.Time{}
	g.pending = false
}
