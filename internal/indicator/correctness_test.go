package indicator

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"macross/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.9f, want %.9f (tol=%.9f, diff=%.9f)", label, got, want, tol, math.Abs(got-want))
	}
}

func randomWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= 1 + (rng.Float64()-0.5)/50
		out[i] = p
	}
	return out
}

type fakeSeries struct {
	closes []float64
}

func (f *fakeSeries) Closes() []float64 { return append([]float64(nil), f.closes...) }
func (f *fakeSeries) Trim(n int)        { f.closes = f.closes[n:] }

// ────────────────────────────────────────────────────────────
// Kernels
// ────────────────────────────────────────────────────────────

func TestKernel_SumsToOne(t *testing.T) {
	for _, kind := range Kinds {
		for p := 1; p <= 60; p++ {
			w, err := Kernel(kind, p)
			if err != nil {
				t.Fatalf("%s(%d): %v", kind, p, err)
			}
			if len(w) != p {
				t.Fatalf("%s(%d): expected %d weights, got %d", kind, p, p, len(w))
			}
			var sum float64
			for _, v := range w {
				sum += v
			}
			assertClose(t, "kernel sum", sum, 1, 1e-12)
		}
	}
}

func TestKernel_ExponentialWeightsNewestHighest(t *testing.T) {
	w, err := Kernel(Exponential, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(w); i++ {
		if w[i] >= w[i-1] {
			t.Fatalf("weight %d (%.6f) not below weight %d (%.6f)", i, w[i], i-1, w[i-1])
		}
	}
	// oldest/newest ratio is e^-1
	assertClose(t, "oldest/newest", w[4]/w[0], math.Exp(-1), 1e-12)
}

func TestKernel_InvalidInput(t *testing.T) {
	if _, err := Kernel(Simple, 0); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := Kernel(Kind("wma"), 3); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Batch correctness
// ────────────────────────────────────────────────────────────

func TestConvolve_SMAPeriod3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// Partial windows divide by the full period:
	//   100/3, 202/3, then (100+102+104)/3 = 102, 103, 104
	w, _ := Kernel(Simple, 3)
	got := Convolve([]float64{100, 102, 104, 103, 105}, w)
	want := []float64{100.0 / 3, 202.0 / 3, 102, 103, 104}
	for i := range want {
		assertClose(t, "SMA(3)", got[i], want[i], 1e-9)
	}
}

func TestConvolve_EMAPeriod2(t *testing.T) {
	// weights: newest 1/(1+e^-1), oldest e^-1/(1+e^-1)
	w, _ := Kernel(Exponential, 2)
	got := Convolve([]float64{10, 20}, w)
	newest := 1 / (1 + math.Exp(-1))
	assertClose(t, "EMA(2)[0]", got[0], 10*newest, 1e-9)
	assertClose(t, "EMA(2)[1]", got[1], 20*newest+10*(1-newest), 1e-9)
	assertClose(t, "EMA(2)[1] value", got[1], 17.310585786, 1e-6)
}

func TestCompute_PeriodOneIsIdentity(t *testing.T) {
	prices := randomWalk(50, 1)
	avg, err := Compute(prices, []int{1}, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range Kinds {
		got := avg.Get(kind, 1)
		for i := range prices {
			assertClose(t, string(kind)+"(1)", got[i], prices[i], 1e-12)
		}
	}
}

func TestComputeSeries_TrimsEverythingAligned(t *testing.T) {
	s := &fakeSeries{closes: randomWalk(200, 2)}
	periods := []int{3, 7, 20}

	avg, err := ComputeSeries(s, periods, false)
	if err != nil {
		t.Fatal(err)
	}
	if avg.Trimmed != 20 {
		t.Errorf("expected trim of max period 20, got %d", avg.Trimmed)
	}
	if len(s.closes) != 180 || avg.Len != 180 {
		t.Fatalf("expected 180 aligned values, series=%d averages=%d", len(s.closes), avg.Len)
	}
	for _, k := range avg.keys() {
		if got := len(avg.Get(k.Kind, k.Period)); got != len(s.closes) {
			t.Errorf("%s: length %d, want %d", k, got, len(s.closes))
		}
	}

	// first kept SMA(20) value is the mean of closes[1..20] of the untrimmed series
	full := randomWalk(200, 2)
	var sum float64
	for _, v := range full[1:21] {
		sum += v
	}
	assertClose(t, "first SMA(20)", avg.Get(Simple, 20)[0], sum/20, 1e-9)
}

func TestCompute_LiveSkipsTrim(t *testing.T) {
	prices := randomWalk(30, 3)
	avg, err := Compute(prices, []int{5, 10}, true)
	if err != nil {
		t.Fatal(err)
	}
	if avg.Len != 30 || avg.Trimmed != 0 || len(avg.Get(Exponential, 10)) != 30 {
		t.Errorf("live compute must keep full length, got len=%d trimmed=%d", avg.Len, avg.Trimmed)
	}
}

func TestCompute_InsufficientDataIsEmpty(t *testing.T) {
	avg, err := Compute(randomWalk(10, 4), []int{5, 30}, false)
	if err != nil {
		t.Fatal(err)
	}
	if avg.Len != 0 || len(avg.Get(Simple, 5)) != 0 {
		t.Errorf("expected empty arrays, got len=%d", avg.Len)
	}
}

func TestCompute_Errors(t *testing.T) {
	if _, err := Compute([]float64{1}, nil, false); !errors.Is(err, ErrNoPeriods) {
		t.Errorf("expected ErrNoPeriods, got %v", err)
	}
	if _, err := Compute([]float64{1}, []int{3, -1}, false); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Incremental vs batch
// ────────────────────────────────────────────────────────────

func TestIncremental_MatchesBatch(t *testing.T) {
	prices := randomWalk(5000, 5)
	for _, kind := range Kinds {
		for _, p := range []int{1, 2, 3, 9, 21, 49} {
			w, _ := Kernel(kind, p)
			batch := Convolve(prices, w)

			a, err := NewAverage(kind, p)
			if err != nil {
				t.Fatal(err)
			}
			for i, price := range prices {
				peek := a.Peek(price)
				a.Update(price)
				if math.Abs(a.Value()-batch[i]) > 1e-8 {
					t.Fatalf("%s at %d: incremental %.12f, batch %.12f", a.Name(), i, a.Value(), batch[i])
				}
				if math.Abs(peek-a.Value()) > 1e-9 {
					t.Fatalf("%s at %d: peek %.12f disagrees with update %.12f", a.Name(), i, peek, a.Value())
				}
				if a.Ready() != (i+1 >= p) {
					t.Fatalf("%s at %d: Ready()=%v", a.Name(), i, a.Ready())
				}
			}
		}
	}
}

func TestIncremental_Reset(t *testing.T) {
	for _, kind := range Kinds {
		a, _ := NewAverage(kind, 4)
		for _, p := range []float64{5, 6, 7, 8, 9} {
			a.Update(p)
		}
		a.Reset()
		if a.Ready() || a.Value() != 0 {
			t.Errorf("%s: expected cleared state, got ready=%v value=%.4f", a.Name(), a.Ready(), a.Value())
		}
		a.Update(8)
		w, _ := Kernel(kind, 4)
		assertClose(t, a.Name()+" after reset", a.Value(), 8*w[0], 1e-12)
	}
}

// ────────────────────────────────────────────────────────────
// Live engine
// ────────────────────────────────────────────────────────────

func TestEngine_ModesAgreeOnLiveSeries(t *testing.T) {
	prices := randomWalk(400, 6)
	periods := []int{3, 8, 25}

	for _, kind := range Kinds {
		rec, err := NewEngine(kind, periods, ModeRecompute)
		if err != nil {
			t.Fatal(err)
		}
		inc, err := NewEngine(kind, periods, ModeIncremental)
		if err != nil {
			t.Fatal(err)
		}

		var candles []model.Candle
		for i, p := range prices {
			// every third price restates the open candle instead of closing it
			if i%3 == 2 && len(candles) > 0 {
				candles[len(candles)-1].Close = p
			} else {
				candles = append(candles, model.Candle{Time: int64(i+1) * 60, Close: p})
			}
			rec.Sync(candles)
			inc.Sync(candles)

			closes := make([]float64, len(candles))
			for j, c := range candles {
				closes[j] = c.Close
			}
			batch, _ := Compute(closes, periods, true)

			for _, period := range periods {
				rv, rok := rec.Value(period)
				iv, iok := inc.Value(period)
				if rok != iok || rok != (len(candles) >= period) {
					t.Fatalf("%s(%d) step %d: ready mismatch rec=%v inc=%v", kind, period, i, rok, iok)
				}
				want := batch.Get(kind, period)[len(closes)-1]
				if math.Abs(rv-want) > 1e-9 || math.Abs(iv-want) > 1e-8 {
					t.Fatalf("%s(%d) step %d: rec=%.10f inc=%.10f batch=%.10f", kind, period, i, rv, iv, want)
				}
			}
		}
	}
}

func TestParseModeAndKind(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeRecompute {
		t.Errorf("expected default recompute, got %q %v", m, err)
	}
	if _, err := ParseMode("lazy"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if k, err := ParseKind("EMA"); err != nil || k != Exponential {
		t.Errorf("expected exp, got %q %v", k, err)
	}
}
