// Package execution turns gated trader decisions into simulated fills
// against a paper position and journals them.
//
// There is no broker: every Executor in this package is a simulation.
package execution

import (
	"errors"
	"time"

	"macross/internal/strategy"
)

// ErrNotHolding is returned when the decision's action does not match the
// asset currently held (e.g. BUY while already holding B).
var ErrNotHolding = errors.New("position cannot take this action")

// ErrNoAction is returned for decisions whose Execute is ActionNone.
var ErrNoAction = errors.New("decision has nothing to execute")

// Fill is one executed conversion.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Action   strategy.Action `json:"action"`
	Time     int64           `json:"time"` // candle time of the decision
	Price    float64         `json:"price"`
	Sum      float64         `json:"sum"` // destination balance after fee
	Fee      float64         `json:"fee"`
	A        float64         `json:"a"`
	B        float64         `json:"b"`
	FilledAt time.Time       `json:"filled_at"`
}

// Executor executes decisions. CanExecute lets callers check the holding
// before committing to side effects.
type Executor interface {
	CanExecute(action strategy.Action) bool
	Execute(d strategy.Decision) (Fill, error)
	Value(price float64) float64
}
