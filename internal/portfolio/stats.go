package portfolio

// streak is the result kind of the previous completed sell.
type streak int

const (
	streakNone streak = iota
	streakWin
	streakLoss
)

// Stats accumulates trade quality figures for one (ma type, period pair).
// Percent values are relative to the cost basis of the trade or streak.
type Stats struct {
	BiggestWin  float64 `json:"biggest_win"`  // best single trade, %
	BiggestLoss float64 `json:"biggest_loss"` // worst single trade, % (<= 0)

	WonSum    float64 `json:"won_sum"`  // summed A gained by winning trades
	LostSum   float64 `json:"lost_sum"` // summed A change of losing trades (<= 0)
	WonCount  int     `json:"won_count"`
	LostCount int     `json:"lost_count"`

	MaxWinStreak  int `json:"max_win_streak"`
	MaxLossStreak int `json:"max_loss_streak"`

	// Largest % gain over a closed run of wins and the deepest % drop over a
	// closed run of losses. A run is only measured once the opposite result
	// ends it.
	MaxConsecutiveProfit float64 `json:"max_consecutive_profit"`
	MaxConsecutiveLoss   float64 `json:"max_consecutive_loss"`

	costBasis   float64
	last        streak
	streakLen   int
	streakStart float64
}

// OnBuy records the A balance spent by a buy; it is the cost basis of the
// next sell.
func (s *Stats) OnBuy(sum float64) {
	s.costBasis = sum
}

// OnSell records the A balance received by a sell and returns the trade's
// profit in percent. ok is false when no buy preceded the sell.
func (s *Stats) OnSell(sum float64) (profit float64, ok bool) {
	before := s.costBasis
	if before <= 0 {
		return 0, false
	}
	profit = (sum - before) / before * 100

	if s.last == streakNone {
		s.streakStart = before
	}

	if profit > 0 {
		if profit > s.BiggestWin {
			s.BiggestWin = profit
		}
		s.WonSum += sum - before
		s.WonCount++

		if s.last == streakLoss {
			if run := (before - s.streakStart) / s.streakStart * 100; run < s.MaxConsecutiveLoss {
				s.MaxConsecutiveLoss = run
			}
			s.streakLen = 0
			s.streakStart = before
		}
		s.streakLen++
		if s.streakLen > s.MaxWinStreak {
			s.MaxWinStreak = s.streakLen
		}
		s.last = streakWin
	} else {
		if profit < s.BiggestLoss {
			s.BiggestLoss = profit
		}
		s.LostSum += sum - before
		s.LostCount++

		if s.last == streakWin {
			if run := (before - s.streakStart) / s.streakStart * 100; run > s.MaxConsecutiveProfit {
				s.MaxConsecutiveProfit = run
			}
			s.streakLen = 0
			s.streakStart = before
		}
		s.streakLen++
		if s.streakLen > s.MaxLossStreak {
			s.MaxLossStreak = s.streakLen
		}
		s.last = streakLoss
	}
	return profit, true
}

// Sells returns the number of completed round trips.
func (s *Stats) Sells() int { return s.WonCount + s.LostCount }
