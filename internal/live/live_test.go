package live

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macross/internal/execution"
	"macross/internal/indicator"
	"macross/internal/metrics"
	"macross/internal/model"
	"macross/internal/notification"
	"macross/internal/strategy"
)

const base = int64(1_700_000_040) // multiple of 60

var minute = model.Resolution{Label: "1m", Seconds: 60}

type step struct {
	ticks []model.Tick
	err   error
}

type fakeSource struct {
	steps []step
	i     int
}

func (f *fakeSource) Fetch(ctx context.Context) ([]model.Tick, error) {
	if f.i >= len(f.steps) {
		return nil, io.EOF
	}
	s := f.steps[f.i]
	f.i++
	return s.ticks, s.err
}

type recorder struct {
	mu        sync.Mutex
	candles   []model.Candle
	decisions []strategy.Decision
	fills     []execution.Fill
	journaled []execution.Fill
	alerts    []notification.Alert
}

func (r *recorder) WriteCandle(_ string, c model.Candle) error {
	r.candles = append(r.candles, c)
	return nil
}
func (r *recorder) WriteDecision(_ string, d strategy.Decision) error {
	r.decisions = append(r.decisions, d)
	return nil
}
func (r *recorder) WriteFill(f execution.Fill) error {
	r.fills = append(r.fills, f)
	return nil
}
func (r *recorder) RecordFill(_ context.Context, _ string, f execution.Fill) error {
	r.journaled = append(r.journaled, f)
	return nil
}
func (r *recorder) Send(_ context.Context, a notification.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func counter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func newLoop(t *testing.T, src model.TickSource, rec *recorder, m *metrics.Metrics) (*Loop, *execution.PaperExecutor) {
	t.Helper()
	trader, err := strategy.NewTrader(strategy.TraderConfig{
		Pair:       model.PeriodPair{Fast: 2, Slow: 4},
		Kind:       indicator.Simple,
		Mode:       indicator.ModeRecompute,
		Resolution: minute,
	})
	require.NoError(t, err)
	exec := execution.NewPaperExecutor(100, 0)

	l, err := New(Config{RunID: "run-1", Resolution: minute, PollInterval: time.Millisecond}, Deps{
		Source:    src,
		Trader:    trader,
		Executor:  exec,
		Journal:   rec,
		Notifier:  rec,
		Publisher: rec,
		Metrics:   m,
	})
	require.NoError(t, err)
	return l, exec
}

// one tick per minute so every poll opens a new candle
func minuteSteps(prices ...float64) []step {
	out := make([]step, len(prices))
	for i, p := range prices {
		out[i] = step{ticks: []model.Tick{{Time: base + int64(i)*60 + 5, Price: p}}}
	}
	return out
}

func TestLoop_GatedBuyExecutesOnce(t *testing.T) {
	src := &fakeSource{steps: minuteSteps(10, 9, 8, 7, 8, 10, 12, 14)}
	rec := &recorder{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	l, exec := newLoop(t, src, rec, m)

	var decisions []strategy.Decision
	for i := range src.steps {
		now := time.Unix(base+int64(i)*60+6, 0)
		l.Now = func() time.Time { return now }
		d, err := l.Step(context.Background())
		require.NoError(t, err, "step %d", i)
		decisions = append(decisions, d)
	}

	// warming until the slow period is covered
	assert.Equal(t, strategy.ActionNone, decisions[2].Signal)
	assert.Equal(t, strategy.ActionSell, decisions[3].Signal)
	assert.Equal(t, strategy.ActionBuy, decisions[5].Signal)
	assert.Equal(t, strategy.ActionNone, decisions[5].Execute, "buy gate only just armed")
	assert.Equal(t, strategy.ActionBuy, decisions[6].Execute)

	pos := exec.Position()
	assert.InDelta(t, 100.0/12, pos.B, 1e-12)
	assert.Zero(t, pos.A)

	require.Len(t, rec.journaled, 1)
	assert.Equal(t, strategy.ActionBuy, rec.journaled[0].Action)
	assert.Len(t, rec.fills, 1)
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "BUY executed", rec.alerts[0].Title)
	assert.Len(t, rec.decisions, 5)
	assert.Len(t, rec.candles, 7)

	assert.Equal(t, 8.0, counter(t, m.TicksTotal))
	assert.Equal(t, 1.0, counter(t, m.TradesTotal.WithLabelValues("BUY")))
	assert.Equal(t, 7.0, counter(t, m.CandlesTotal.WithLabelValues("1m")))
}

func TestLoop_TrendVetoesSignals(t *testing.T) {
	src := &fakeSource{steps: minuteSteps(10, 9, 8, 7, 8, 10, 12, 14)}
	rec := &recorder{}
	l, exec := newLoop(t, src, rec, nil)

	var seen []int
	l.deps.Trend = func(candles []model.Candle) strategy.Trend {
		seen = append(seen, len(candles))
		return strategy.TrendDown
	}

	for i := range src.steps {
		now := time.Unix(base+int64(i)*60+6, 0)
		l.Now = func() time.Time { return now }
		d, err := l.Step(context.Background())
		require.NoError(t, err, "step %d", i)
		assert.NotEqual(t, strategy.ActionBuy, d.Signal, "step %d", i)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, seen, "trend sees the live series")
	assert.Empty(t, rec.journaled)
	assert.Equal(t, 100.0, exec.Position().A)
}

func TestLoop_FetchFailureSkipsIteration(t *testing.T) {
	boom := errors.New("feed down")
	src := &fakeSource{steps: []step{
		{ticks: []model.Tick{{Time: base + 5, Price: 10}}},
		{err: boom},
		{ticks: []model.Tick{{Time: base + 65, Price: 11}}},
	}}
	rec := &recorder{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	l, _ := newLoop(t, src, rec, m)
	ctx := context.Background()

	_, err := l.Step(ctx)
	require.NoError(t, err)
	before := l.Series().Candles()

	_, err = l.Step(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, l.Series().Candles(), "failed fetch must not touch the series")
	assert.Equal(t, 1.0, counter(t, m.FetchFailures))

	_, err = l.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Series().Len())
}

func TestLoop_RunStopsAtEOF(t *testing.T) {
	src := &fakeSource{steps: minuteSteps(10, 11, 12)}
	l, _ := newLoop(t, src, &recorder{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Run(ctx))
	assert.Equal(t, 3, l.Series().Len())
}

func TestLoop_BackfillThenLive(t *testing.T) {
	src := &fakeSource{steps: []step{{ticks: []model.Tick{{Time: base + 125, Price: 13}}}}}
	rec := &recorder{}
	l, _ := newLoop(t, src, rec, nil)

	l.Backfill([]model.Tick{{Time: base + 5, Price: 10}, {Time: base + 65, Price: 11}})
	require.Equal(t, 2, l.Series().Len(), "open interval becomes the live slot")
	assert.Equal(t, 11.0, l.Series().At(1).Close)

	_, err := l.Step(context.Background())
	require.NoError(t, err)
	s := l.Series()
	require.Equal(t, 3, s.Len())
	last, _ := s.Last()
	assert.Equal(t, model.Candle{Time: base + 180, Close: 13, High: 13, Low: 13}, last, "first live tick is the open slot")
	require.Len(t, rec.candles, 1)
	assert.Equal(t, 11.0, rec.candles[0].Close)
}

func TestNew_RequiresCoreDeps(t *testing.T) {
	_, err := New(Config{Resolution: minute}, Deps{})
	assert.Error(t, err)
}
