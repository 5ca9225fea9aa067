// Package live runs the polling trader: every interval it fetches the ticks
// that arrived since the previous poll, folds them into the open candle,
// re-evaluates the crossover and executes gated decisions on a paper
// position.
package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"macross/internal/execution"
	"macross/internal/marketdata/agg"
	"macross/internal/metrics"
	"macross/internal/model"
	"macross/internal/notification"
	"macross/internal/strategy"
)

// DefaultPollInterval is the live poll cadence.
const DefaultPollInterval = 10 * time.Second

// Publisher receives live output. The Redis buffered writer satisfies it.
type Publisher interface {
	WriteCandle(res string, c model.Candle) error
	WriteDecision(res string, d strategy.Decision) error
	WriteFill(f execution.Fill) error
}

// Journal persists fills.
type Journal interface {
	RecordFill(ctx context.Context, runID string, f execution.Fill) error
}

// Config holds loop parameters.
type Config struct {
	RunID        string
	Resolution   model.Resolution
	PollInterval time.Duration
	// MaxCandles bounds the live series; 0 keeps everything.
	MaxCandles int
}

// Deps are the collaborators of a Loop. Source, Trader and Executor are
// required; the rest are optional.
type Deps struct {
	Source   model.TickSource
	Trader   *strategy.Trader
	Executor execution.Executor

	Ticks     model.TickWriter
	Journal   Journal
	Notifier  notification.Notifier
	Publisher Publisher
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus

	// Trend, if set, supplies the external trend filter for each decision.
	Trend func(candles []model.Candle) strategy.Trend
}

// Loop is the live trader. Step and Run must not be called concurrently.
type Loop struct {
	cfg  Config
	deps Deps
	agg  *agg.Aggregator

	closed []model.Candle // candles closed during the current step

	// Now defaults to time.Now.
	Now func() time.Time
	// OnDecision, if set, receives every evaluated decision.
	OnDecision func(strategy.Decision)
}

// New validates deps and wires aggregator hooks into metrics.
func New(cfg Config, deps Deps) (*Loop, error) {
	if deps.Source == nil || deps.Trader == nil || deps.Executor == nil {
		return nil, errors.New("live: source, trader and executor are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	l := &Loop{cfg: cfg, deps: deps, agg: agg.New(cfg.Resolution), Now: time.Now}
	l.agg.MaxLen = cfg.MaxCandles
	l.agg.OnCandle = func(c model.Candle) { l.closed = append(l.closed, c) }
	if m := deps.Metrics; m != nil {
		label := cfg.Resolution.Label
		l.agg.OnDroppedTick = func(model.Tick) { m.DroppedTicks.Inc() }
		l.agg.OnGapFill = func(n int) { m.GapFilledTotal.WithLabelValues(label).Add(float64(n)) }
		deps.Trader.OnGate = func(action strategy.Action, change strategy.GateChange, _ time.Time) {
			m.GateTransitions.WithLabelValues(string(action), change.String()).Inc()
		}
	}
	return l, nil
}

// Backfill seeds the series from stored ticks and exposes the still open
// interval as the live slot.
func (l *Loop) Backfill(ticks []model.Tick) {
	for _, t := range ticks {
		l.agg.Append(t)
	}
	l.agg.GoLive()
	l.closed = l.closed[:0]
	log.Printf("[live] backfilled %d ticks into %d %s candles", len(ticks), l.agg.Series().Len(), l.cfg.Resolution)
}

// Series exposes the live candle series.
func (l *Loop) Series() *agg.Series { return l.agg.Series() }

// Run polls until ctx is cancelled or the source is exhausted (io.EOF).
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("[live] polling every %s at %s resolution", l.cfg.PollInterval, l.cfg.Resolution)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := l.Step(ctx); errors.Is(err, io.EOF) {
			log.Printf("[live] tick source exhausted")
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step runs one poll. A fetch error skips the iteration without touching
// any state and is returned so callers can observe it.
func (l *Loop) Step(ctx context.Context) (strategy.Decision, error) {
	m := l.deps.Metrics
	ticks, err := l.deps.Source.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Printf("[live] fetch failed, skipping iteration: %v", err)
			if m != nil {
				m.FetchFailures.Inc()
			}
		}
		return strategy.Decision{}, fmt.Errorf("live fetch: %w", err)
	}

	if len(ticks) > 0 {
		l.ingest(ctx, ticks)
	}

	candles := l.agg.Series().Candles()
	if len(candles) == 0 {
		return strategy.Decision{}, nil
	}

	trend := strategy.TrendUnknown
	if l.deps.Trend != nil {
		trend = l.deps.Trend(candles)
	}

	now := l.Now()
	start := time.Now()
	d, ok := l.deps.Trader.Evaluate(candles, trend, now)
	if m != nil {
		m.AverageComputeDur.Observe(time.Since(start).Seconds())
		m.CandleLag.Set(now.Sub(candles[len(candles)-1].TS()).Seconds())
	}
	if h := l.deps.Health; h != nil {
		h.SetTraderReady(ok)
	}
	if !ok {
		return strategy.Decision{}, nil
	}

	if m != nil {
		signal := string(d.Signal)
		if signal == "" {
			signal = "none"
		}
		m.DecisionsTotal.WithLabelValues(signal).Inc()
		m.PositionValue.Set(l.deps.Executor.Value(d.Price))
	}
	if l.OnDecision != nil {
		l.OnDecision(d)
	}
	l.publish(func(p Publisher) error { return p.WriteDecision(l.cfg.Resolution.Label, d) })

	if d.Execute != strategy.ActionNone && l.deps.Executor.CanExecute(d.Execute) {
		l.execute(ctx, d)
	}
	return d, nil
}

func (l *Loop) ingest(ctx context.Context, ticks []model.Tick) {
	m := l.deps.Metrics
	if l.deps.Ticks != nil {
		if err := l.deps.Ticks.WriteTicks(ctx, ticks); err != nil {
			log.Printf("[live] store ticks: %v", err)
		}
	}

	l.closed = l.closed[:0]
	for _, t := range ticks {
		l.agg.Update(t)
	}
	if m != nil {
		m.TicksTotal.Add(float64(len(ticks)))
		m.CandlesTotal.WithLabelValues(l.cfg.Resolution.Label).Add(float64(len(l.closed)))
	}
	if h := l.deps.Health; h != nil {
		h.SetLastTickTime(ticks[len(ticks)-1].TS())
	}
	for _, c := range l.closed {
		l.publish(func(p Publisher) error { return p.WriteCandle(l.cfg.Resolution.Label, c) })
	}
}

func (l *Loop) execute(ctx context.Context, d strategy.Decision) {
	fill, err := l.deps.Executor.Execute(d)
	if err != nil {
		log.Printf("[live] execute %s: %v", d.Execute, err)
		return
	}
	if m := l.deps.Metrics; m != nil {
		m.TradesTotal.WithLabelValues(string(fill.Action)).Inc()
		m.PositionValue.Set(l.deps.Executor.Value(fill.Price))
	}
	if l.deps.Journal != nil {
		if err := l.deps.Journal.RecordFill(ctx, l.cfg.RunID, fill); err != nil {
			log.Printf("[live] journal fill %s: %v", fill.OrderID, err)
		}
	}
	if l.deps.Notifier != nil {
		alert := notification.TradeAlert(string(fill.Action), fill.Price, fill.Sum, l.deps.Executor.Value(fill.Price), fill.Time)
		nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := l.deps.Notifier.Send(nctx, alert); err != nil {
			log.Printf("[live] notify: %v", err)
		}
		cancel()
	}
	l.publish(func(p Publisher) error { return p.WriteFill(fill) })
}

func (l *Loop) publish(fn func(Publisher) error) {
	if l.deps.Publisher == nil {
		return
	}
	if err := fn(l.deps.Publisher); err != nil {
		log.Printf("[live] publish: %v", err)
	}
}
