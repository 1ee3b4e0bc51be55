// Package scout ranks the universe by trend/volatility so Workflow can
// gate downstream signal evaluation to the top-N candidates (spec §4.2).
package scout

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Ranked is one entry in the scout's ordered output.
type Ranked struct {
	Symbol string
	Trend  decimal.Decimal
	Vol    decimal.Decimal
}

// Rank orders symbols by trend descending, vol ascending. Grounded on
// the teacher's internal/regime/detector.go trend/vol feature
// calculations, generalized from a single symbol to a ranked universe.
// Symbols with empty or too-short bar windows are skipped.
func Rank(bars map[string][]types.Bar) []Ranked {
	out := make([]Ranked, 0, len(bars))
	for symbol, series := range bars {
		if len(series) < 2 {
			continue
		}
		first := series[0].Close
		last := series[len(series)-1].Close
		if first.IsZero() {
			continue
		}
		trend := last.Sub(first).Div(first)
		vol := annualizedVol(series)
		out = append(out, Ranked{Symbol: symbol, Trend: trend, Vol: vol})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Trend.Equal(out[j].Trend) {
			return out[i].Trend.GreaterThan(out[j].Trend)
		}
		return out[i].Vol.LessThan(out[j].Vol)
	})
	return out
}

// TopN returns the first n entries of ranked, or all of them if fewer.
func TopN(ranked []Ranked, n int) []Ranked {
	if n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}

// annualizedVol is the stddev of bar-to-bar returns scaled by sqrt(252),
// matching spec §4.2's definition.
func annualizedVol(series []types.Bar) decimal.Decimal {
	if len(series) < 3 {
		return decimal.Zero
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Close
		if prev.IsZero() {
			continue
		}
		r := series[i].Close.Sub(prev).Div(prev)
		returns = append(returns, r.InexactFloat64())
	}
	if len(returns) < 2 {
		return decimal.Zero
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	stddev := math.Sqrt(variance) * math.Sqrt(252)
	return decimal.NewFromFloat(stddev)
}
