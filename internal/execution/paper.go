package execution

import (
	"fmt"
	"log"
	"sync"
	"time"

	"macross/internal/portfolio"
	"macross/internal/strategy"
)

// PaperExecutor converts the whole balance on every fill, like the
// backtest simulator, so live results are comparable with the sweep.
type PaperExecutor struct {
	mu       sync.RWMutex
	pos      *portfolio.Position
	stats    portfolio.Stats
	fee      float64
	fills    []Fill
	orderSeq int64

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewPaperExecutor starts with principal in asset A.
func NewPaperExecutor(principal, fee float64) *PaperExecutor {
	return &PaperExecutor{
		pos:   portfolio.NewPosition(principal),
		fee:   fee,
		fills: make([]Fill, 0, 64),
		Now:   time.Now,
	}
}

// CanExecute reports whether the current holding allows action.
func (p *PaperExecutor) CanExecute(action strategy.Action) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch action {
	case strategy.ActionBuy:
		return p.pos.HoldingA()
	case strategy.ActionSell:
		return p.pos.HoldingB()
	}
	return false
}

// Execute fills d.Execute at d.Price.
func (p *PaperExecutor) Execute(d strategy.Decision) (Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		before float64
		err    error
	)
	switch d.Execute {
	case strategy.ActionBuy:
		if !p.pos.HoldingA() {
			return Fill{}, fmt.Errorf("buy: %w", ErrNotHolding)
		}
		before = p.pos.A
		_, err = p.pos.Buy(d.Time, d.Price, p.fee)
		if err == nil {
			p.stats.OnBuy(before)
		}
	case strategy.ActionSell:
		if !p.pos.HoldingB() {
			return Fill{}, fmt.Errorf("sell: %w", ErrNotHolding)
		}
		_, err = p.pos.Sell(d.Time, d.Price, p.fee)
		if err == nil {
			p.stats.OnSell(p.pos.A)
		}
	default:
		return Fill{}, ErrNoAction
	}
	if err != nil {
		return Fill{}, err
	}

	p.orderSeq++
	fill := Fill{
		OrderID:  fmt.Sprintf("PAPER-%d", p.orderSeq),
		Action:   d.Execute,
		Time:     d.Time,
		Price:    d.Price,
		Fee:      p.fee,
		A:        p.pos.A,
		B:        p.pos.B,
		FilledAt: p.Now().UTC(),
	}
	if d.Execute == strategy.ActionBuy {
		fill.Sum = p.pos.B
	} else {
		fill.Sum = p.pos.A
	}
	p.fills = append(p.fills, fill)

	log.Printf("[paper] %s price=%.2f sum=%.6f order=%s", fill.Action, fill.Price, fill.Sum, fill.OrderID)
	return fill, nil
}

// Position returns a copy of the current balances.
func (p *PaperExecutor) Position() portfolio.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.pos
}

// Stats returns a copy of the realized trade statistics.
func (p *PaperExecutor) Stats() portfolio.Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Value marks the position to price in units of A.
func (p *PaperExecutor) Value(price float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos.Value(price)
}

// GetFills returns a snapshot of all fills.
func (p *PaperExecutor) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
