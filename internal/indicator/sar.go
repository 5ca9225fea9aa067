package indicator

import "macross/internal/model"

// Parabolic SAR acceleration defaults.
const (
	SARStart = 0.02
	SARStep  = 0.02
	SARMax   = 0.2
)

// SAR is a parabolic stop-and-reverse series, index-aligned with the candles
// it was computed from. Up[i] reports whether candle i closed in an uptrend.
type SAR struct {
	Values []float64
	Up     []bool
}

// ParabolicSAR computes Wilder's parabolic SAR over candle highs and lows.
// The first direction is taken from the first two candles' directional
// movement, ties going up. Fewer than two candles yield an empty SAR.
func ParabolicSAR(candles []model.Candle, start, step, max float64) SAR {
	n := len(candles)
	if n < 2 {
		return SAR{}
	}
	out := SAR{Values: make([]float64, n), Up: make([]bool, n)}

	c0, c1 := candles[0], candles[1]
	up := c1.High-c0.High >= c0.Low-c1.Low
	sar, ep := c0.Low, c0.High
	if !up {
		sar, ep = c0.High, c0.Low
	}
	af := start
	out.Values[0], out.Up[0] = sar, up

	for i := 1; i < n; i++ {
		c := candles[i]
		sar += af * (ep - sar)
		if up {
			// never above the two prior lows
			sar = min(sar, candles[i-1].Low)
			if i >= 2 {
				sar = min(sar, candles[i-2].Low)
			}
			if c.Low < sar {
				up, sar, ep, af = false, ep, c.Low, start
			} else if c.High > ep {
				ep, af = c.High, min(af+step, max)
			}
		} else {
			sar = maxf(sar, candles[i-1].High)
			if i >= 2 {
				sar = maxf(sar, candles[i-2].High)
			}
			if c.High > sar {
				up, sar, ep, af = true, ep, c.High, start
			} else if c.Low < ep {
				ep, af = c.Low, min(af+step, max)
			}
		}
		out.Values[i], out.Up[i] = sar, up
	}
	return out
}

// maxf avoids shadowing by the max parameter.
func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
