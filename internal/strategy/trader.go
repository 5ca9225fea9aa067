package strategy

import (
	"fmt"
	"log"
	"time"

	"macross/internal/indicator"
	"macross/internal/model"
)

// TraderConfig configures the live crossover trader.
type TraderConfig struct {
	Pair         model.PeriodPair
	Kind         indicator.Kind
	Mode         indicator.Mode
	Resolution   model.Resolution
	GateFraction float64
}

// Decision is the trader's reading of the latest candle. Execute is the
// action whose gate has fired, or ActionNone.
type Decision struct {
	Time    int64   `json:"time"`
	Price   float64 `json:"price"`
	Fast    float64 `json:"fast"`
	Slow    float64 `json:"slow"`
	Trend   string  `json:"trend"`
	Signal  Action  `json:"signal"`
	Execute Action  `json:"execute"`
}

// Trader derives gated live decisions from a candle series whose last
// candle may still be open. Designed for single-goroutine usage.
type Trader struct {
	cfg  TraderConfig
	avgs *indicator.Engine

	buy  *Gate
	sell *Gate

	// OnGate, if set, is called whenever a gate arms or cancels.
	OnGate func(action Action, change GateChange, triggerAt time.Time)
}

// NewTrader validates cfg and builds the averages and both gates.
func NewTrader(cfg TraderConfig) (*Trader, error) {
	if !cfg.Pair.Valid() {
		return nil, fmt.Errorf("trader: invalid pair %d/%d", cfg.Pair.Fast, cfg.Pair.Slow)
	}
	avgs, err := indicator.NewEngine(cfg.Kind, []int{cfg.Pair.Fast, cfg.Pair.Slow}, cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("trader: %w", err)
	}
	return &Trader{
		cfg:  cfg,
		avgs: avgs,
		buy:  NewGate(ActionBuy, cfg.Resolution, cfg.GateFraction),
		sell: NewGate(ActionSell, cfg.Resolution, cfg.GateFraction),
	}, nil
}

// Evaluate recomputes the averages over candles and runs the signal through
// both gates. ok is false until the series covers the slow period.
func (t *Trader) Evaluate(candles []model.Candle, trend Trend, now time.Time) (Decision, bool) {
	t.avgs.Sync(candles)
	fast, fok := t.avgs.Value(t.cfg.Pair.Fast)
	slow, sok := t.avgs.Value(t.cfg.Pair.Slow)
	if !fok || !sok {
		return Decision{}, false
	}

	last := candles[len(candles)-1]
	d := Decision{
		Time:   last.Time,
		Price:  last.Close,
		Fast:   fast,
		Slow:   slow,
		Trend:  trend.String(),
		Signal: Decide(fast, slow, trend),
	}

	for _, g := range []*Gate{t.buy, t.sell} {
		if change := g.Observe(d.Signal, now); change != GateUnchanged {
			at, _ := g.TriggerAt()
			if change == GateArmed {
				log.Printf("[trader] %s gate armed, fires after %s", g.Action, at.Format(time.RFC3339))
			} else {
				log.Printf("[trader] %s gate reset", g.Action)
			}
			if t.OnGate != nil {
				t.OnGate(g.Action, change, at)
			}
		}
	}

	switch {
	case d.Signal == ActionBuy && t.buy.Ready(now):
		d.Execute = ActionBuy
	case d.Signal == ActionSell && t.sell.Ready(now):
		d.Execute = ActionSell
	}
	return d, true
}

// Reset clears averages and gates.
func (t *Trader) Reset() {
	t.avgs.Reset()
	t.buy.Reset()
	t.sell.Reset()
}
