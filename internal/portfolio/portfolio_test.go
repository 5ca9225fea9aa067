package portfolio

import (
	"errors"
	"math"
	"testing"

	"macross/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

// ────────────────────────────────────────────────────────────
// Position
// ────────────────────────────────────────────────────────────

func TestPosition_RoundTripNoFee(t *testing.T) {
	p := NewPosition(100)

	buy, err := p.Buy(1, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if buy.Kind != model.SideBuy || buy.Sum != 1 {
		t.Errorf("unexpected buy event %+v", buy)
	}
	if p.HoldingA() || !p.HoldingB() {
		t.Errorf("expected only B after buy, got A=%.4f B=%.4f", p.A, p.B)
	}

	sell, err := p.Sell(2, 110, 0)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "end sum", sell.Sum, 110, 1e-9)
	assertClose(t, "profit %", (sell.Sum-100)*100/100, 10, 1e-9)
	if p.Trades != 2 {
		t.Errorf("expected 2 trades, got %d", p.Trades)
	}
}

func TestPosition_FeeOnDestination(t *testing.T) {
	p := NewPosition(100)
	if _, err := p.Buy(1, 100, 0.002); err != nil {
		t.Fatal(err)
	}
	assertClose(t, "B after buy", p.B, 0.998, 1e-12)

	if _, err := p.Sell(2, 110, 0.002); err != nil {
		t.Fatal(err)
	}
	assertClose(t, "A after sell", p.A, 0.998*110*0.998, 1e-9)
	assertClose(t, "A value", p.A, 109.560440, 1e-6)
	if p.B != 0 {
		t.Errorf("expected B zeroed, got %.6f", p.B)
	}
}

func TestPosition_Errors(t *testing.T) {
	p := NewPosition(100)
	if _, err := p.Sell(1, 100, 0); !errors.Is(err, ErrEmptyBalance) {
		t.Errorf("expected ErrEmptyBalance, got %v", err)
	}
	if _, err := p.Buy(1, 0, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
	if p.A != 100 || p.Trades != 0 {
		t.Errorf("failed conversions must not change the position: %+v", p)
	}
}

// ────────────────────────────────────────────────────────────
// Stats
// ────────────────────────────────────────────────────────────

type roundTrip struct{ before, after float64 }

func feed(s *Stats, trips []roundTrip) {
	for _, tr := range trips {
		s.OnBuy(tr.before)
		s.OnSell(tr.after)
	}
}

func TestStats_SingleWin(t *testing.T) {
	var s Stats
	s.OnBuy(100)
	profit, ok := s.OnSell(110)
	if !ok {
		t.Fatal("expected sell to be recorded")
	}
	assertClose(t, "profit", profit, 10, 1e-9)
	assertClose(t, "biggest win", s.BiggestWin, 10, 1e-9)
	assertClose(t, "won sum", s.WonSum, 10, 1e-9)
	if s.WonCount != 1 || s.LostCount != 0 || s.MaxWinStreak != 1 {
		t.Errorf("unexpected counters %+v", s)
	}
	// an open win run is never measured
	if s.MaxConsecutiveProfit != 0 {
		t.Errorf("expected no closed run, got %.4f", s.MaxConsecutiveProfit)
	}
}

func TestStats_StreaksCloseOnKindChange(t *testing.T) {
	var s Stats
	feed(&s, []roundTrip{
		{100, 110},     // +10
		{110, 121},     // +10
		{121, 108.9},   // -10, closes win run 100 -> 121
		{108.9, 98.01}, // -10
		{98.01, 107.811},
	})

	if s.WonCount != 3 || s.LostCount != 2 || s.Sells() != 5 {
		t.Fatalf("unexpected counts won=%d lost=%d", s.WonCount, s.LostCount)
	}
	if s.MaxWinStreak != 2 || s.MaxLossStreak != 2 {
		t.Errorf("expected streaks 2/2, got %d/%d", s.MaxWinStreak, s.MaxLossStreak)
	}
	assertClose(t, "max consecutive profit", s.MaxConsecutiveProfit, 21, 1e-9)
	assertClose(t, "max consecutive loss", s.MaxConsecutiveLoss, -19, 1e-9)
	assertClose(t, "biggest win", s.BiggestWin, 10, 1e-9)
	assertClose(t, "biggest loss", s.BiggestLoss, -10, 1e-9)
	assertClose(t, "won sum", s.WonSum, 10+11+9.801, 1e-9)
	assertClose(t, "lost sum", s.LostSum, -12.1-10.89, 1e-9)
}

func TestStats_BreakEvenIsLoss(t *testing.T) {
	var s Stats
	feed(&s, []roundTrip{{100, 100}})
	if s.LostCount != 1 || s.WonCount != 0 || s.MaxLossStreak != 1 {
		t.Errorf("expected break-even counted as loss, got %+v", s)
	}
	if s.BiggestLoss != 0 {
		t.Errorf("break-even must not move biggest loss, got %.4f", s.BiggestLoss)
	}
}

func TestStats_SellWithoutBuyIgnored(t *testing.T) {
	var s Stats
	if _, ok := s.OnSell(50); ok {
		t.Fatal("expected sell without buy to be ignored")
	}
	if s.Sells() != 0 {
		t.Errorf("expected no trades, got %d", s.Sells())
	}
}
