// Package exits implements the adaptive exit state machine: portfolio-
// wide kill switch, take-profit, ATR stop, trailing stop (with a wide
// outer band), and breakeven stop (spec §4.11). Ported from
// original_source/src/trading_floor/agents/exits.py, the richest of the
// pack's deduped variants (resolves spec §9 Open Question 2), extended
// with the wide_trail_trigger/wide_trail_pct band spec's config table
// names but the Python source lacks.
package exits

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// ForcedExit is one ExitManager-originated closing decision.
type ForcedExit struct {
	Symbol string
	Side   types.OrderSide
	Reason string
}

// CheckExits evaluates the kill switch first (closing every position if
// triggered), then, for the remaining positions, the per-position stop
// ladder in priority order: take-profit, ATR-stop, trailing-stop (gated
// by peak_gain >= trail_trigger, with a wider band past
// wide_trail_trigger), else breakeven.
func CheckExits(positions map[string]*types.Position, atrPctBySymbol map[string]decimal.Decimal, equity decimal.Decimal, cfg config.RiskConfig) []ForcedExit {
	if exits := checkKillSwitch(positions, equity, cfg.PortfolioKillPct); exits != nil {
		return exits
	}

	var out []ForcedExit
	for symbol, pos := range positions {
		if pos.Quantity.IsZero() {
			continue
		}
		if reason, ok := checkPosition(pos, atrPctBySymbol[symbol], cfg); ok {
			side := types.OrderSideSell
			if pos.IsShort() {
				side = types.OrderSideBuy
			}
			out = append(out, ForcedExit{Symbol: symbol, Side: side, Reason: reason})
		}
	}
	return out
}

// checkKillSwitch closes all positions when aggregate unrealized PnL is
// negative and its magnitude is at least portfolio_kill_pct of equity.
func checkKillSwitch(positions map[string]*types.Position, equity decimal.Decimal, killPct decimal.Decimal) []ForcedExit {
	total := decimal.Zero
	for _, pos := range positions {
		total = total.Add(pos.UnrealizedPnL())
	}
	if !total.IsNegative() || equity.IsZero() {
		return nil
	}
	if total.Abs().Div(equity).LessThan(killPct) {
		return nil
	}
	out := make([]ForcedExit, 0, len(positions))
	for symbol, pos := range positions {
		side := types.OrderSideSell
		if pos.IsShort() {
			side = types.OrderSideBuy
		}
		out = append(out, ForcedExit{Symbol: symbol, Side: side, Reason: "portfolio kill switch"})
	}
	return out
}

func entryPnLPct(pos *types.Position) decimal.Decimal {
	if pos.AvgPrice.IsZero() {
		return decimal.Zero
	}
	diff := pos.CurrentPrice.Sub(pos.AvgPrice)
	if pos.IsShort() {
		diff = pos.AvgPrice.Sub(pos.CurrentPrice)
	}
	return diff.Div(pos.AvgPrice)
}

// peakGain is (highest-avg)/avg for longs, (avg-lowest)/avg for shorts.
func peakGain(pos *types.Position) decimal.Decimal {
	if pos.AvgPrice.IsZero() {
		return decimal.Zero
	}
	if pos.IsShort() {
		return pos.AvgPrice.Sub(pos.LowestPrice).Div(pos.AvgPrice)
	}
	return pos.HighestPrice.Sub(pos.AvgPrice).Div(pos.AvgPrice)
}

// drawdownFromWatermark is how far price has retraced from the
// favorable watermark, as a fraction of the watermark itself (negative
// for longs retracing down from highest_price, positive for shorts
// retracing up from lowest_price). The watermark falls back to
// avg_price when not yet set, matching exits.py's `hwm = highest_price
// if highest_price > 0 else avg_price` (and the symmetric lwm for
// shorts).
func drawdownFromWatermark(pos *types.Position) decimal.Decimal {
	if pos.IsShort() {
		lwm := pos.LowestPrice
		if !lwm.IsPositive() {
			lwm = pos.AvgPrice
		}
		if lwm.IsZero() {
			return decimal.Zero
		}
		return pos.CurrentPrice.Sub(lwm).Div(lwm)
	}
	hwm := pos.HighestPrice
	if !hwm.IsPositive() {
		hwm = pos.AvgPrice
	}
	if hwm.IsZero() {
		return decimal.Zero
	}
	return pos.CurrentPrice.Sub(hwm).Div(hwm)
}

// checkPosition runs the priority ladder for one position: take-profit,
// ATR-stop, trailing-stop (wide band if armed), else breakeven.
func checkPosition(pos *types.Position, atrPct decimal.Decimal, cfg config.RiskConfig) (string, bool) {
	pnlPct := entryPnLPct(pos)

	if pnlPct.GreaterThanOrEqual(cfg.TakeProfit) {
		return "take profit", true
	}

	atrStop := calcATRStop(atrPct, cfg)
	if pnlPct.LessThanOrEqual(atrStop.Neg()) {
		return "atr stop", true
	}

	gain := peakGain(pos)
	if gain.GreaterThanOrEqual(cfg.WideTrailTrigger) {
		if drawdownFromWatermark(pos).LessThanOrEqual(cfg.WideTrailPct.Neg()) {
			return "wide trailing stop", true
		}
		return "", false
	}
	if gain.GreaterThanOrEqual(cfg.TrailingTrigger) {
		if drawdownFromWatermark(pos).LessThanOrEqual(cfg.TrailingPct.Neg()) {
			return "trailing stop", true
		}
		return "", false
	}
	if gain.GreaterThanOrEqual(cfg.TrailingBreakevenTrigger) && !pnlPct.IsPositive() {
		return "breakeven stop", true
	}
	return "", false
}

// calcATRStop clamps the ATR-derived stop to [0.5%,5%], falling back to
// the configured hard stop_loss when ATR data is unavailable.
func calcATRStop(atrPct decimal.Decimal, cfg config.RiskConfig) decimal.Decimal {
	if atrPct.IsZero() {
		return cfg.StopLoss
	}
	stop := atrPct.Mul(cfg.ATRStopMultiplier)
	lo := decimal.NewFromFloat(0.005)
	hi := decimal.NewFromFloat(0.05)
	if stop.LessThan(lo) {
		return lo
	}
	if stop.GreaterThan(hi) {
		return hi
	}
	return stop
}

// CheckMaxPositions returns at most (max_positions - current) of
// newPlans, highest |score| first, matching original_source's
// check_max_positions.
func CheckMaxPositions(newPlans []types.Plan, current, maxPositions int) []types.Plan {
	available := maxPositions - current
	if available <= 0 {
		return nil
	}
	sorted := make([]types.Plan, len(newPlans))
	copy(sorted, newPlans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score.Abs().GreaterThan(sorted[j].Score.Abs()) })
	if available >= len(sorted) {
		return sorted
	}
	return sorted[:available]
}
