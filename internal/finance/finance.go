// Package finance implements the single-warn "caution" sub-review (spec
// §4.13): a small deterministic rule bundle invoked only when Challenger
// raises exactly one warn.
package finance

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Decision is the sub-review's verdict.
type Decision struct {
	Pass   bool
	Reason string
}

// Input bundles the state the sub-review's deterministic rules need.
type Input struct {
	Cash              decimal.Decimal
	Equity            decimal.Decimal
	CurrentPositions  int
	MaxPositions      int
	TodaysSymbolPnL   decimal.Decimal
	CautionMinScore   decimal.Decimal
}

// Evaluate rejects if cash/equity < 0.15, or a BUY at max positions, or
// |score| below caution_min_score, or today's cumulative PnL on the
// symbol below -$50.
func Evaluate(plan types.Plan, in Input) Decision {
	if in.Equity.IsPositive() && in.Cash.Div(in.Equity).LessThan(decimal.NewFromFloat(0.15)) {
		return Decision{Pass: false, Reason: "cash ratio below 0.15"}
	}
	if plan.Side == types.OrderSideBuy && in.CurrentPositions >= in.MaxPositions {
		return Decision{Pass: false, Reason: "at max positions"}
	}
	if plan.Score.Abs().LessThan(in.CautionMinScore) {
		return Decision{Pass: false, Reason: "score below caution minimum"}
	}
	if in.TodaysSymbolPnL.LessThan(decimal.NewFromFloat(-50)) {
		return Decision{Pass: false, Reason: "today's cumulative PnL on symbol below -$50"}
	}
	return Decision{Pass: true}
}
