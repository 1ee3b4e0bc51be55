// Package risk implements the Risk gate: ATR% band check, sector-news
// filter, and net-position cap (spec §4.7).
package risk

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// SectorSentimentProvider is the external collaborator returning recent
// sector sentiment (spec §1: news/sentiment HTTP sources are out of
// scope — grounded on original_source/sector_filter.py's shape, but the
// scraper itself is not reimplemented here).
type SectorSentimentProvider interface {
	SectorSentiment(ctx context.Context, symbol string) (decimal.Decimal, bool, error)
}

// Decision is the Risk gate's verdict for one candidate.
type Decision struct {
	Pass   bool
	Reason string
}

// Evaluate runs the ATR%, sector-news, and net-position checks for one
// non-exit, non-SELL candidate. Forced exits and SELLs skip these checks
// per spec §4.7.
func Evaluate(ctx context.Context, plan types.Plan, bars []types.Bar, cfg config.RiskConfig, sector SectorSentimentProvider, existingPositions, exitingSymbols int, newEntries int) Decision {
	if plan.IsForcedExit() || plan.Side == types.OrderSideSell {
		return Decision{Pass: true}
	}

	atrPct := ATRPercent(bars, cfg.ATRPeriod)
	if atrPct.LessThan(cfg.MinATRPct) || atrPct.GreaterThan(cfg.MaxATRPct) {
		return Decision{Pass: false, Reason: "atr percent outside configured band"}
	}

	if sector != nil {
		sentiment, ok, err := sector.SectorSentiment(ctx, plan.Symbol)
		if err == nil && ok && sentiment.LessThan(cfg.SectorFilterThreshold) {
			return Decision{Pass: false, Reason: "sector sentiment below threshold"}
		}
	}

	netPositions := existingPositions - exitingSymbols + newEntries
	if netPositions > cfg.MaxPositions {
		return Decision{Pass: false, Reason: "exceeds max positions"}
	}

	return Decision{Pass: true}
}

// ATRPercent computes ATR as a fraction of price: true ATR when
// high/low are present, else a return-std proxy, matching
// original_source/agents/exits.py._calc_atr_stop's dual-path approach.
func ATRPercent(bars []types.Bar, period int) decimal.Decimal {
	if len(bars) < 2 {
		return decimal.Zero
	}
	n := period
	if n > len(bars)-1 {
		n = len(bars) - 1
	}
	if n < 1 {
		return decimal.Zero
	}
	tail := bars[len(bars)-n:]

	hasRange := true
	for _, b := range tail {
		if b.High.IsZero() && b.Low.IsZero() {
			hasRange = false
			break
		}
	}

	last := bars[len(bars)-1].Close
	if last.IsZero() {
		return decimal.Zero
	}

	if hasRange {
		sum := decimal.Zero
		prevClose := bars[len(bars)-n-1].Close
		for _, b := range tail {
			tr := trueRange(b, prevClose)
			sum = sum.Add(tr)
			prevClose = b.Close
		}
		atr := sum.Div(decimal.NewFromInt(int64(len(tail))))
		return atr.Div(last).Abs()
	}

	returns := make([]float64, 0, len(tail)-1)
	for i := 1; i < len(tail); i++ {
		prev := tail[i-1].Close
		if prev.IsZero() {
			continue
		}
		returns = append(returns, tail[i].Close.Sub(prev).Div(prev).InexactFloat64())
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
	return decimal.NewFromFloat(math.Sqrt(variance))
}

func trueRange(b types.Bar, prevClose decimal.Decimal) decimal.Decimal {
	hl := b.High.Sub(b.Low).Abs()
	hc := b.High.Sub(prevClose).Abs()
	lc := b.Low.Sub(prevClose).Abs()
	max := hl
	if hc.GreaterThan(max) {
		max = hc
	}
	if lc.GreaterThan(max) {
		max = lc
	}
	return max
}
