// Package signals computes the four independent signal-family scalars
// (spec §4.3), normalizes them, and combines them into a composite score
// (spec §4.4). Grounded on original_source's agents/signal_momentum.py,
// signal_meanreversion.py, signal_breakout.py for exact formulas.
package signals

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func sma(bars []types.Bar, n int) (decimal.Decimal, bool) {
	if len(bars) < n || n <= 0 {
		return decimal.Zero, false
	}
	tail := bars[len(bars)-n:]
	sum := decimal.Zero
	for _, b := range tail {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(n))), true
}

// Momentum is (last_close-SMA_short)/SMA_short, zero on insufficient data
// or zero SMA.
func Momentum(bars []types.Bar, shortWindow int) decimal.Decimal {
	if len(bars) == 0 {
		return decimal.Zero
	}
	avg, ok := sma(bars, shortWindow)
	if !ok || avg.IsZero() {
		return decimal.Zero
	}
	last := bars[len(bars)-1].Close
	return last.Sub(avg).Div(avg)
}

// MeanReversion is (SMA_long-last_close)/SMA_long; positive means
// oversold (price below its long-run average).
func MeanReversion(bars []types.Bar, longWindow int) decimal.Decimal {
	if len(bars) == 0 {
		return decimal.Zero
	}
	avg, ok := sma(bars, longWindow)
	if !ok || avg.IsZero() {
		return decimal.Zero
	}
	last := bars[len(bars)-1].Close
	return avg.Sub(last).Div(avg)
}

// Breakout maps the position of the last close within the prior
// `lookback` bars' high-low range onto [-1,+1]. The current bar is
// excluded from the range computation when enough history exists, to
// prevent the signal pinning to +-1 every bar.
func Breakout(bars []types.Bar, lookback int) decimal.Decimal {
	if len(bars) < 2 || lookback <= 0 {
		return decimal.Zero
	}
	n := lookback
	// Exclude the current (last) bar from the range when possible.
	end := len(bars) - 1
	start := end - n
	if start < 0 {
		start = 0
	}
	window := bars[start:end]
	if len(window) == 0 {
		window = bars[:len(bars)-1]
	}
	if len(window) == 0 {
		return decimal.Zero
	}
	hi, lo := window[0].High, window[0].Low
	for _, b := range window[1:] {
		if b.High.GreaterThan(hi) {
			hi = b.High
		}
		if b.Low.LessThan(lo) {
			lo = b.Low
		}
	}
	rangeSpan := hi.Sub(lo)
	if rangeSpan.IsZero() {
		return decimal.Zero
	}
	last := bars[len(bars)-1].Close
	// position in [0,1] -> map to [-1,1]
	pos := last.Sub(lo).Div(rangeSpan)
	mapped := pos.Mul(decimal.NewFromInt(2)).Sub(decimal.NewFromInt(1))
	return clamp(mapped, decimal.NewFromInt(-1), decimal.NewFromInt(1))
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// normalizeTanh is the Normalizer's under-10-samples / zero-variance
// fallback: tanh(raw*100), matching spec §4.3 exactly.
func normalizeTanh(raw decimal.Decimal) decimal.Decimal {
	x := raw.InexactFloat64() * 100
	return decimal.NewFromFloat(math.Tanh(x))
}
