package model

// Side is the direction of a simulated conversion.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeEvent is emitted by the crossover simulator on every conversion.
// Sum is the resulting balance of the destination asset.
type TradeEvent struct {
	Kind  Side    `json:"kind"`
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
	Sum   float64 `json:"sum"`
}

// PeriodPair is a fast/slow moving average period combination. Fast < Slow.
type PeriodPair struct {
	Fast int `json:"fast"`
	Slow int `json:"slow"`
}

// Valid reports whether both periods are positive and fast is strictly shorter.
func (p PeriodPair) Valid() bool {
	return p.Fast > 0 && p.Fast < p.Slow
}

// AllPairs returns every fast<slow combination drawn from periods, in
// lexicographic order of (fast, slow).
func AllPairs(periods []int) []PeriodPair {
	var pairs []PeriodPair
	for i := 0; i < len(periods); i++ {
		for j := i + 1; j < len(periods); j++ {
			p := PeriodPair{Fast: periods[i], Slow: periods[j]}
			if p.Fast > p.Slow {
				p.Fast, p.Slow = p.Slow, p.Fast
			}
			if p.Valid() {
				pairs = append(pairs, p)
			}
		}
	}
	return pairs
}
