// Package pm constructs sized candidate plans from ranked, scored
// symbols: the regime/held-position filter, correlation filter, and
// volatility/fixed-fractional/Kelly sizing methods (spec §4.6). Grounded
// on original_source/src/trading_floor/agents/pm.py.
package pm

import (
	"context"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/memory"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Candidate is one scored symbol before sizing.
type Candidate struct {
	Symbol     string
	Score      decimal.Decimal
	Side       types.OrderSide
	Components types.SignalComponents
	Weights    types.SignalWeights
	Vol        decimal.Decimal // annualized
	Returns    []float64       // pct-change tail for correlation filter
}

// Input bundles everything PM needs for one invocation's plan.
type Input struct {
	Candidates       []Candidate
	IsDowntrend      bool
	IsFear           bool
	Positions        map[string]*types.Position
	Equity           decimal.Decimal
	Cash             decimal.Decimal
	SignalsCfg       config.SignalsConfig
	RiskCfg          config.RiskConfig
	MemoryAgentName  string
	Memory           *memory.AgentMemory
	RegimeLabel      string
}

// CreatePlan runs the full candidate→sized-plan pipeline: regime/held
// filter, threshold emission, conviction sort, correlation filter,
// sizing, fear-regime halving, and memory-weight integration.
func CreatePlan(ctx context.Context, in Input) []types.Plan {
	filtered := filterCandidates(in)
	filtered = correlationFilter(filtered, in.SignalsCfg.CorrelationThreshold, in.SignalsCfg.MaxTradesPerCycle)

	plans := make([]types.Plan, 0, len(filtered))
	for _, c := range filtered {
		targetValue := sizeCandidate(c, in)
		if !targetValue.IsPositive() {
			continue
		}
		if in.IsFear {
			targetValue = targetValue.Mul(decimal.NewFromFloat(0.5))
		}

		plan := types.Plan{
			Symbol:      c.Symbol,
			Side:        c.Side,
			Kind:        types.PlanKindEntry,
			Score:       c.Score,
			TargetValue: targetValue,
			Components:  c.Components,
			WeightsUsed: c.Weights,
		}

		if in.Memory != nil && !in.Memory.Disabled() {
			applyMemoryAdjustment(ctx, &plan, in)
		}

		plans = append(plans, plan)
	}
	return plans
}

// filterCandidates drops symbols already held long when BUY is proposed
// (shorts are permitted even while long) and drops BUY candidates during
// a downtrend regime, then emits only |score| >= trade_threshold.
func filterCandidates(in Input) []Candidate {
	var out []Candidate
	for _, c := range in.Candidates {
		if pos, held := in.Positions[c.Symbol]; held && pos.IsLong() && c.Side == types.OrderSideBuy {
			continue
		}
		if in.IsDowntrend && c.Side == types.OrderSideBuy {
			continue
		}
		if c.Score.Abs().LessThan(in.SignalsCfg.TradeThreshold) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score.Abs().GreaterThan(out[j].Score.Abs()) })
	return out
}

// correlationFilter iterates candidates by conviction, dropping any whose
// absolute Pearson correlation with an already-selected candidate
// exceeds threshold, keeping up to maxTrades.
func correlationFilter(candidates []Candidate, threshold decimal.Decimal, maxTrades int) []Candidate {
	var selected []Candidate
	for _, c := range candidates {
		if len(selected) >= maxTrades {
			break
		}
		correlated := false
		for _, s := range selected {
			corr := pearsonCorrelation(c.Returns, s.Returns)
			if math.Abs(corr) > threshold.InexactFloat64() {
				correlated = true
				break
			}
		}
		if !correlated {
			selected = append(selected, c)
		}
	}
	return selected
}

// pearsonCorrelation aligns by tail-length and refuses correlation (0)
// when the overlap is under 5 points, per spec §9's design note.
func pearsonCorrelation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 5 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	meanA, meanB := mean(a), mean(b)
	var num, denomA, denomB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		denomA += da * da
		denomB += db * db
	}
	if denomA == 0 || denomB == 0 {
		return 0
	}
	return num / math.Sqrt(denomA*denomB)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sizeCandidate dispatches to the configured sizing method.
func sizeCandidate(c Candidate, in Input) decimal.Decimal {
	switch in.SignalsCfg.SizingMethod {
	case "fixed_fractional":
		return fixedFractionalSize(in.Equity, in.SignalsCfg.FixedFraction, in.RiskCfg.StopLoss)
	case "kelly":
		return kellySize(c.Score, c.Vol, in.Equity, in.SignalsCfg.MaxTradesPerCycle)
	default: // "volatility"
		return volatilitySize(in.Equity, in.SignalsCfg.MaxTradesPerCycle, c.Vol)
	}
}

func volatilitySize(equity decimal.Decimal, maxTrades int, vol decimal.Decimal) decimal.Decimal {
	if maxTrades <= 0 {
		return decimal.Zero
	}
	base := equity.Div(decimal.NewFromInt(int64(maxTrades)))
	v := vol.InexactFloat64()
	factor := 1.0
	if v > 0 {
		factor = clampFloat(0.20/v, 0.5, 1.5)
	}
	return base.Mul(decimal.NewFromFloat(factor))
}

func fixedFractionalSize(equity, fixedFraction, stopLoss decimal.Decimal) decimal.Decimal {
	if stopLoss.IsZero() {
		return decimal.Zero
	}
	return equity.Mul(fixedFraction).Div(stopLoss)
}

// kellySize implements the half-Kelly formula exactly per
// original_source/agents/pm.py._kelly_size: synthetic edge from |score|,
// p=0.5+edge, b=1/vol, f*=clamp((p*b-q)/b,0,0.25), capped at
// equal-allocation (equity/max_trades).
func kellySize(score, vol, equity decimal.Decimal, maxTrades int) decimal.Decimal {
	v := vol.InexactFloat64()
	if v <= 0 {
		v = 0.01
	}
	edge := math.Min(math.Abs(score.InexactFloat64()), 0.5)
	p := 0.5 + edge
	q := 1 - p
	b := 1 / v
	kellyF := clampFloat((p*b-q)/b, 0, 0.25)
	halfKelly := kellyF * 0.5

	dollarSize := equity.Mul(decimal.NewFromFloat(halfKelly))
	if maxTrades > 0 {
		equalAlloc := equity.Div(decimal.NewFromInt(int64(maxTrades)))
		if dollarSize.GreaterThan(equalAlloc) {
			dollarSize = equalAlloc
		}
	}
	return dollarSize
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyMemoryAdjustment consults AgentMemory and applies a bounded
// multiplicative score adjustment, tagging the plan memory_influenced,
// or flips the in-process disabled flag for the remainder of the run.
func applyMemoryAdjustment(ctx context.Context, plan *types.Plan, in Input) {
	decision, err := in.Memory.SuggestWeightAdjustment(ctx, plan.Score.Abs(), in.RegimeLabel)
	if err != nil {
		return
	}
	switch decision.Action {
	case types.MemoryDecisionAdjust:
		sign := decimal.NewFromInt(1)
		if plan.Score.IsNegative() {
			sign = decimal.NewFromInt(-1)
		}
		plan.Score = decision.NewWeight.Mul(sign)
		plan.MemoryInfluenced = true
	case types.MemoryDecisionDisable, types.MemoryDecisionInsufficient:
		// no adjustment this cycle
	}
}
