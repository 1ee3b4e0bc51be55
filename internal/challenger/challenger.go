// Package challenger implements the rule-based veto/caution layer (spec
// §4.10), grounded on original_source/src/trading_floor/challenger.py
// check-for-check.
package challenger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/store"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Severity is warn or block.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityBlock Severity = "block"
)

// Challenge is one raised concern.
type Challenge struct {
	Agent    string
	Severity Severity
	Reason   string
}

// Outcome is should_proceed's decision: pass, reject, or caution
// (exactly one warn, routed to the Finance sub-review).
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeReject  Outcome = "reject"
	OutcomeCaution Outcome = "caution"
)

// HMMRead exposes the minimal regime read Challenger's regime-mismatch
// check needs.
type HMMRead struct {
	BullProb decimal.Decimal
	BearProb decimal.Decimal
}

// Evaluate runs all 7 checks for one candidate plan and returns the
// raised challenges plus the should_proceed outcome.
func Evaluate(ctx context.Context, st *store.Store, plan types.Plan, cfg config.ChallengesConfig, hmm HMMRead) ([]Challenge, Outcome, error) {
	var challenges []Challenge

	if c := checkSignalDisagreement(plan, cfg.DisagreementThreshold); c != nil {
		challenges = append(challenges, *c)
	}

	reentered, err := checkReentry(ctx, st, plan)
	if err != nil {
		return nil, "", fmt.Errorf("reentry check: %w", err)
	}
	if reentered != nil {
		challenges = append(challenges, *reentered)
		if c := checkReentrySignalQuality(plan, cfg.MinNewsScore); c != nil {
			challenges = append(challenges, *c)
		}
	}

	if c := checkRegimeMismatch(plan, hmm); c != nil {
		challenges = append(challenges, *c)
	}

	if c := checkNewsAbsence(plan); c != nil {
		challenges = append(challenges, *c)
	}

	lossy, err := checkConsecutiveLosses(ctx, st, plan, cfg.MaxConsecutiveLosses)
	if err != nil {
		return nil, "", fmt.Errorf("consecutive losses check: %w", err)
	}
	if lossy != nil {
		challenges = append(challenges, *lossy)
	}

	if c := checkMeanRevOpposition(plan); c != nil {
		challenges = append(challenges, *c)
	}

	return challenges, shouldProceed(challenges), nil
}

func shouldProceed(challenges []Challenge) Outcome {
	warns := 0
	for _, c := range challenges {
		if c.Severity == SeverityBlock {
			return OutcomeReject
		}
		if c.Severity == SeverityWarn {
			warns++
		}
	}
	switch {
	case warns == 0:
		return OutcomePass
	case warns == 1:
		return OutcomeCaution
	default:
		return OutcomeReject
	}
}

// checkSignalDisagreement compares spread over active (non-zero-weight)
// components; severity escalates to block past 1.5x the threshold.
func checkSignalDisagreement(plan types.Plan, threshold decimal.Decimal) *Challenge {
	var active []decimal.Decimal
	if !plan.WeightsUsed.Momentum.IsZero() {
		active = append(active, plan.Components.Momentum)
	}
	if !plan.WeightsUsed.MeanRev.IsZero() {
		active = append(active, plan.Components.MeanRev)
	}
	if !plan.WeightsUsed.Breakout.IsZero() {
		active = append(active, plan.Components.Breakout)
	}
	if !plan.WeightsUsed.News.IsZero() {
		active = append(active, plan.Components.News)
	}
	if len(active) < 2 {
		return nil
	}
	max, min := active[0], active[0]
	for _, v := range active[1:] {
		if v.GreaterThan(max) {
			max = v
		}
		if v.LessThan(min) {
			min = v
		}
	}
	spread := max.Sub(min)
	if spread.LessThan(threshold) {
		return nil
	}
	sev := SeverityWarn
	if spread.GreaterThanOrEqual(threshold.Mul(decimal.NewFromFloat(1.5))) {
		sev = SeverityBlock
	}
	return &Challenge{Agent: "challenger", Severity: sev, Reason: "signal disagreement across active components"}
}

func checkReentry(ctx context.Context, st *store.Store, plan types.Plan) (*Challenge, error) {
	trades, err := st.TodaysTradesForSymbol(ctx, plan.Symbol, time.Now().UTC(), 1)
	if err != nil {
		return nil, err
	}
	if len(trades) > 0 {
		return &Challenge{Agent: "challenger", Severity: SeverityWarn, Reason: "symbol exited today, re-entry"}, nil
	}
	return nil, nil
}

// checkReentrySignalQuality only fires alongside checkReentry: every
// active component must agree direction and news must be present.
func checkReentrySignalQuality(plan types.Plan, minNewsScore decimal.Decimal) *Challenge {
	want := plan.Score.Sign()
	agree := true
	if !plan.WeightsUsed.Momentum.IsZero() && plan.Components.Momentum.Sign() != want {
		agree = false
	}
	if !plan.WeightsUsed.MeanRev.IsZero() && plan.Components.MeanRev.Sign() != want {
		agree = false
	}
	if !plan.WeightsUsed.Breakout.IsZero() && plan.Components.Breakout.Sign() != want {
		agree = false
	}
	hasNews := plan.Components.News.Abs().GreaterThanOrEqual(minNewsScore)
	if !agree || !hasNews {
		return &Challenge{Agent: "challenger", Severity: SeverityWarn, Reason: "re-entry signal quality insufficient"}
	}
	return nil
}

func checkRegimeMismatch(plan types.Plan, hmm HMMRead) *Challenge {
	threshold := decimal.NewFromFloat(0.75)
	if plan.Side == types.OrderSideBuy && hmm.BearProb.GreaterThan(threshold) {
		return &Challenge{Agent: "challenger", Severity: SeverityWarn, Reason: "BUY against high bear probability regime"}
	}
	if plan.Side == types.OrderSideSell && hmm.BullProb.GreaterThan(threshold) {
		return &Challenge{Agent: "challenger", Severity: SeverityWarn, Reason: "SELL against high bull probability regime"}
	}
	return nil
}

func checkNewsAbsence(plan types.Plan) *Challenge {
	if plan.Components.News.IsZero() {
		return &Challenge{Agent: "challenger", Severity: SeverityWarn, Reason: "news signal absent"}
	}
	return nil
}

func checkConsecutiveLosses(ctx context.Context, st *store.Store, plan types.Plan, maxConsecutive int) (*Challenge, error) {
	if maxConsecutive <= 0 {
		return nil, nil
	}
	trades, err := st.RecentTradesForSymbol(ctx, plan.Symbol, maxConsecutive)
	if err != nil {
		return nil, err
	}
	if len(trades) < maxConsecutive {
		return nil, nil
	}
	for _, t := range trades {
		if !t.PnL.IsNegative() {
			return nil, nil
		}
	}
	return &Challenge{Agent: "challenger", Severity: SeverityBlock, Reason: "max consecutive losses on symbol"}, nil
}

// checkMeanRevOpposition only applies to BUY candidates.
func checkMeanRevOpposition(plan types.Plan) *Challenge {
	if plan.Side != types.OrderSideBuy {
		return nil
	}
	if plan.Components.MeanRev.LessThan(decimal.NewFromFloat(-0.5)) {
		return &Challenge{Agent: "challenger", Severity: SeverityWarn, Reason: "mean reversion opposes BUY"}
	}
	return nil
}
