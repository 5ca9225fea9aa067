package indicator

import (
	"testing"

	"macross/internal/model"
)

func hl(pairs ...[2]float64) []model.Candle {
	out := make([]model.Candle, len(pairs))
	for i, p := range pairs {
		out[i] = model.Candle{Time: int64(i+1) * 60, High: p[0], Low: p[1], Close: (p[0] + p[1]) / 2}
	}
	return out
}

// ────────────────────────────────────────────────────────────────────────────
// Parabolic SAR
// ────────────────────────────────────────────────────────────────────────────

func TestParabolicSAR_RisingThenReversal(t *testing.T) {
	// Hand-computed with AF 0.02/0.02/0.2:
	//   i=0 up, sar 9, ep 10
	//   i=1 9.02 clamped to low[0]=9, ep 11, af .04
	//   i=2 9.08 clamped to 9, ep 12, af .06
	//   i=3 9 + .06*3 = 9.18, ep 13, af .08
	//   i=4 9.18 + .08*3.82 = 9.4856 > low 7, reverse to ep 13
	candles := hl([2]float64{10, 9}, [2]float64{11, 10}, [2]float64{12, 11}, [2]float64{13, 12}, [2]float64{9, 7})
	s := ParabolicSAR(candles, SARStart, SARStep, SARMax)

	wantV := []float64{9, 9, 9, 9.18, 13}
	wantUp := []bool{true, true, true, true, false}
	if len(s.Values) != len(candles) || len(s.Up) != len(candles) {
		t.Fatalf("expected %d values, got %d/%d", len(candles), len(s.Values), len(s.Up))
	}
	for i := range wantV {
		assertClose(t, "sar", s.Values[i], wantV[i], 1e-12)
		if s.Up[i] != wantUp[i] {
			t.Errorf("up[%d]: got %v, want %v", i, s.Up[i], wantUp[i])
		}
	}
}

func TestParabolicSAR_FallingStart(t *testing.T) {
	// -DM 2 > +DM -1, so down: sar 10, ep 9; then 9.98 clamped up to high[0]=10,
	// new low 7 extends ep.
	candles := hl([2]float64{10, 9}, [2]float64{9, 7}, [2]float64{12, 8})
	s := ParabolicSAR(candles, SARStart, SARStep, SARMax)

	assertClose(t, "sar[0]", s.Values[0], 10, 1e-12)
	assertClose(t, "sar[1]", s.Values[1], 10, 1e-12)
	if s.Up[0] || s.Up[1] {
		t.Errorf("expected downtrend start, got %v", s.Up)
	}
	// i=2: 10 + .04*(7-10) = 9.88, raised to 10; high 12 breaks it, flip to ep 7
	assertClose(t, "sar[2]", s.Values[2], 7, 1e-12)
	if !s.Up[2] {
		t.Error("expected reversal to uptrend")
	}
}

func TestParabolicSAR_AccelerationCapped(t *testing.T) {
	pairs := make([][2]float64, 30)
	for i := range pairs {
		pairs[i] = [2]float64{float64(100 + 10*i), float64(99 + 10*i)}
	}
	s := ParabolicSAR(hl(pairs...), SARStart, SARStep, SARMax)
	for i, up := range s.Up {
		if !up {
			t.Fatalf("steady rise reversed at %d", i)
		}
		if i > 0 && s.Values[i] < s.Values[i-1] {
			t.Errorf("sar fell at %d: %f < %f", i, s.Values[i], s.Values[i-1])
		}
	}
	// af is 0.2 long before the end: sar moves 20% of the gap to ep
	n := len(pairs) - 1
	prev := s.Values[n-1]
	assertClose(t, "capped step", s.Values[n], prev+SARMax*(pairs[n-1][0]-prev), 1e-9)
}

func TestParabolicSAR_TooShort(t *testing.T) {
	if s := ParabolicSAR(hl([2]float64{1, 0}), SARStart, SARStep, SARMax); len(s.Values) != 0 || len(s.Up) != 0 {
		t.Errorf("expected empty SAR, got %+v", s)
	}
	if s := ParabolicSAR(nil, SARStart, SARStep, SARMax); len(s.Values) != 0 {
		t.Errorf("expected empty SAR, got %+v", s)
	}
}
