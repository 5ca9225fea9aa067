package execution

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"macross/internal/strategy"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.9f, want %.9f", label, got, want)
	}
}

func decision(action strategy.Action, ts int64, price float64) strategy.Decision {
	return strategy.Decision{Time: ts, Price: price, Signal: action, Execute: action}
}

// ────────────────────────────────────────────────────────────
// Paper executor
// ────────────────────────────────────────────────────────────

func TestPaperExecutor_RoundTrip(t *testing.T) {
	p := NewPaperExecutor(100, 0)

	if !p.CanExecute(strategy.ActionBuy) || p.CanExecute(strategy.ActionSell) {
		t.Fatal("fresh position must only be able to buy")
	}

	buy, err := p.Execute(decision(strategy.ActionBuy, 60, 50))
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "B after buy", buy.Sum, 2, 1e-12)
	if buy.OrderID != "PAPER-1" {
		t.Errorf("expected PAPER-1, got %s", buy.OrderID)
	}

	sell, err := p.Execute(decision(strategy.ActionSell, 120, 60))
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "A after sell", sell.Sum, 120, 1e-12)
	assertClose(t, "value", p.Value(999), 120, 1e-12)

	st := p.Stats()
	if st.WonCount != 1 {
		t.Errorf("expected one winning trade, got %d", st.WonCount)
	}
	assertClose(t, "biggest win", st.BiggestWin, 20, 1e-9)
	if len(p.GetFills()) != 2 {
		t.Errorf("expected 2 fills, got %d", len(p.GetFills()))
	}
}

func TestPaperExecutor_RejectsWrongHolding(t *testing.T) {
	p := NewPaperExecutor(100, 0.002)

	if _, err := p.Execute(decision(strategy.ActionSell, 60, 50)); !errors.Is(err, ErrNotHolding) {
		t.Errorf("expected ErrNotHolding, got %v", err)
	}
	if _, err := p.Execute(strategy.Decision{Time: 60, Price: 50}); !errors.Is(err, ErrNoAction) {
		t.Errorf("expected ErrNoAction, got %v", err)
	}
	if len(p.GetFills()) != 0 {
		t.Error("rejected decisions must not fill")
	}
	if p.Position().A != 100 {
		t.Errorf("balance changed on rejection: %+v", p.Position())
	}
}

func TestPaperExecutor_FeeOnDestination(t *testing.T) {
	p := NewPaperExecutor(100, 0.01)
	fill, err := p.Execute(decision(strategy.ActionBuy, 60, 10))
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "B after 1% fee", fill.Sum, 9.9, 1e-12)
	assertClose(t, "fill B", fill.B, 9.9, 1e-12)
	if fill.A != 0 {
		t.Errorf("expected A=0 after buy, got %.4f", fill.A)
	}
}

// ────────────────────────────────────────────────────────────
// Journal
// ────────────────────────────────────────────────────────────

func TestJournal_RecordAndRead(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	fills := []Fill{
		{OrderID: "PAPER-1", Action: strategy.ActionBuy, Time: 60, Price: 50, Sum: 2, B: 2, FilledAt: at},
		{OrderID: "PAPER-2", Action: strategy.ActionSell, Time: 120, Price: 60, Sum: 120, A: 120, FilledAt: at},
	}
	for _, f := range fills {
		if err := j.RecordFill(ctx, "run-a", f); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.RecordFill(ctx, "run-b", fills[0]); err != nil {
		t.Fatal(err)
	}

	got, err := j.GetTrades(ctx, "run-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fills for run-a, got %d", len(got))
	}
	if got[0].OrderID != "PAPER-2" || got[0].Action != "SELL" || got[0].A != 120 {
		t.Errorf("expected newest first, got %+v", got[0])
	}
	if got[1].FilledAt != at.Format(time.RFC3339) {
		t.Errorf("filled_at: got %s", got[1].FilledAt)
	}

	all, err := j.GetTrades(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 fills across runs, got %d", len(all))
	}

	unlimited, err := j.GetTrades(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(unlimited) != 3 {
		t.Errorf("limit 0: expected every fill, got %d", len(unlimited))
	}
}
