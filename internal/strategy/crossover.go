package strategy

import (
	"fmt"

	"macross/internal/model"
	"macross/internal/portfolio"
)

// DefaultPrincipal is the starting A balance of every simulated pair.
const DefaultPrincipal = 100.0

// Simulator replays aligned fast/slow average arrays for one period pair,
// swapping the full balance between A and B on crossovers.
type Simulator struct {
	Principal float64
	Fee       float64
	// ArmGate suppresses buys until a fast < slow sample has been seen, so a
	// series that starts above the slow average does not buy immediately.
	ArmGate bool
	// SellDown, when non-nil, is index-aligned with prices and only lets a
	// sell through where it is set, e.g. a parabolic SAR downtrend.
	SellDown []bool
}

// Result is the outcome of one pair. EndSum and Profit are only meaningful
// when HasData is set, i.e. at least one sell completed.
type Result struct {
	Pair         model.PeriodPair `json:"pair"`
	EndSum       float64          `json:"end_sum"`
	Profit       float64          `json:"profit"` // percent of principal
	HasData      bool             `json:"has_data"`
	Transactions int              `json:"transactions"`
	Stats        portfolio.Stats  `json:"stats"`
}

// Run simulates pair over fast, slow, prices and times, which must be
// index-aligned. observe, if non-nil, receives every trade event.
func (s Simulator) Run(pair model.PeriodPair, fast, slow, prices []float64, times []int64, observe func(model.TradeEvent)) (Result, error) {
	n := len(prices)
	if len(fast) != n || len(slow) != n || len(times) != n || (s.SellDown != nil && len(s.SellDown) != n) {
		return Result{}, fmt.Errorf("simulate %d/%d: misaligned inputs fast=%d slow=%d prices=%d times=%d",
			pair.Fast, pair.Slow, len(fast), len(slow), n, len(times))
	}
	principal := s.Principal
	if principal <= 0 {
		principal = DefaultPrincipal
	}

	res := Result{Pair: pair}
	pos := portfolio.NewPosition(principal)
	armed := !s.ArmGate

	for i := 0; i < n; i++ {
		f, sl := fast[i], slow[i]
		if f < sl {
			armed = true
		}

		switch {
		case pos.HoldingA() && f > sl && armed:
			before := pos.A
			ev, err := pos.Buy(times[i], prices[i], s.Fee)
			if err != nil {
				return res, fmt.Errorf("simulate %d/%d at %d: %w", pair.Fast, pair.Slow, times[i], err)
			}
			res.Stats.OnBuy(before)
			res.Transactions++
			if observe != nil {
				observe(ev)
			}
		case pos.HoldingB() && f < sl && (s.SellDown == nil || s.SellDown[i]):
			ev, err := pos.Sell(times[i], prices[i], s.Fee)
			if err != nil {
				return res, fmt.Errorf("simulate %d/%d at %d: %w", pair.Fast, pair.Slow, times[i], err)
			}
			res.EndSum = pos.A
			res.HasData = true
			res.Stats.OnSell(pos.A)
			res.Transactions++
			if observe != nil {
				observe(ev)
			}
		}
	}

	if res.HasData {
		res.Profit = (res.EndSum - principal) * 100 / principal
	}
	return res, nil
}
