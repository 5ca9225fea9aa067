// Package strategy turns fast/slow moving average pairs into buy/sell
// decisions: the batch crossover simulator used by backtests and the gated
// live trader.
package strategy

import (
	"macross/internal/indicator"
	"macross/internal/model"
)

// Action is a trading action.
type Action string

const (
	ActionNone Action = ""
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Trend is an optional external trend reading used to filter signals.
type Trend int8

const (
	TrendUnknown Trend = iota // no filter
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	}
	return "unknown"
}

// Decide returns the instantaneous signal for the latest fast and slow
// averages. A known trend vetoes signals against it: no buys in a downtrend,
// no sells in an uptrend.
func Decide(fast, slow float64, trend Trend) Action {
	switch {
	case fast > slow && trend != TrendDown:
		return ActionBuy
	case fast < slow && trend != TrendUp:
		return ActionSell
	}
	return ActionNone
}

// SARTrend reads the trend of the last candle from a parabolic SAR over
// candles. Fewer than two candles give TrendUnknown.
func SARTrend(candles []model.Candle) Trend {
	s := indicator.ParabolicSAR(candles, indicator.SARStart, indicator.SARStep, indicator.SARMax)
	if len(s.Up) == 0 {
		return TrendUnknown
	}
	if s.Up[len(s.Up)-1] {
		return TrendUp
	}
	return TrendDown
}
