package exits

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func baseRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		StopLoss:                 decimal.NewFromFloat(0.02),
		ATRStopMultiplier:        decimal.NewFromFloat(2.0),
		TrailingBreakevenTrigger: decimal.NewFromFloat(0.01),
		TrailingTrigger:          decimal.NewFromFloat(0.025),
		TrailingPct:              decimal.NewFromFloat(0.012),
		WideTrailTrigger:         decimal.NewFromFloat(0.15),
		WideTrailPct:             decimal.NewFromFloat(0.05),
		TakeProfit:               decimal.NewFromFloat(0.08),
		PortfolioKillPct:         decimal.NewFromFloat(0.03),
	}
}

// Seed scenario: equity=5000, two longs, aggregate unrealized=-160
// (-3.2%), kill_pct=0.03 -> both positions closed.
func TestKillSwitchClosesAllPositions(t *testing.T) {
	positions := map[string]*types.Position{
		"AAPL": {Symbol: "AAPL", Quantity: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(92)},
		"MSFT": {Symbol: "MSFT", Quantity: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(200), CurrentPrice: decimal.NewFromInt(192)},
	}
	equity := decimal.NewFromInt(5000)

	exits := CheckExits(positions, nil, equity, baseRiskConfig())
	if len(exits) != 2 {
		t.Fatalf("expected kill switch to close both positions, got %d", len(exits))
	}
	for _, e := range exits {
		if e.Reason != "portfolio kill switch" {
			t.Errorf("unexpected reason %q", e.Reason)
		}
	}
}

// Seed scenario: long entry=100, current=97, ATR%=1.5%, multiplier=2.0
// -> atr stop = 1.5%*2.0 = 3% (inside the [0.5%, 5%] clamp), and
// pnl=-3% <= -3% triggers SELL.
func TestATRStopLongSell(t *testing.T) {
	positions := map[string]*types.Position{
		"AAPL": {Symbol: "AAPL", Quantity: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(97)},
	}
	atr := map[string]decimal.Decimal{"AAPL": decimal.NewFromFloat(0.015)}
	equity := decimal.NewFromInt(50000)

	exits := CheckExits(positions, atr, equity, baseRiskConfig())
	if len(exits) != 1 {
		t.Fatalf("expected one exit, got %d", len(exits))
	}
	if exits[0].Reason != "atr stop" || exits[0].Side != types.OrderSideSell {
		t.Errorf("expected atr stop SELL, got %+v", exits[0])
	}
}

// Seed scenario: long entry=50, highest=60, current=58.5.
// peak_gain=(60-50)/50=20% >= trailing_trigger(2.5%); drawdown from the
// watermark=(58.5-60)/60=-2.5% <= -trailing_pct(1.2%), so the plain
// trailing stop fires. Wide band is tuned unarmed (trigger 50%) so
// plain trailing takes the priority slot instead of wide trailing, and
// take-profit is raised to 50% so the +17% open pnl does not exit first.
func TestTrailingStopSell(t *testing.T) {
	cfg := baseRiskConfig()
	cfg.WideTrailTrigger = decimal.NewFromFloat(0.5) // keep wide band unarmed
	cfg.TakeProfit = decimal.NewFromFloat(0.5)       // keep the 17% open pnl from triggering take-profit first
	positions := map[string]*types.Position{
		"AAPL": {Symbol: "AAPL", Quantity: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(50), HighestPrice: decimal.NewFromInt(60), CurrentPrice: decimal.NewFromFloat(58.5)},
	}
	equity := decimal.NewFromInt(50000)

	exits := CheckExits(positions, nil, equity, cfg)
	if len(exits) != 1 {
		t.Fatalf("expected one exit, got %d", len(exits))
	}
	if exits[0].Reason != "trailing stop" || exits[0].Side != types.OrderSideSell {
		t.Errorf("expected trailing stop SELL, got %+v", exits[0])
	}
}

// Seed scenario: long entry=100, highest=150, current=140. peak_gain=
// (150-100)/100=50% arms the wide band (trigger 15%). Retracement from
// the watermark is (140-150)/150=-6.67%, which does NOT breach
// wide_trail_pct(8%), so no exit. Dividing by avg_price instead of the
// watermark would have given (140-150)/100=-10%, wrongly breaching -8%
// and forcing an exit; pins the watermark, not avg_price, as the
// denominator.
func TestWideTrailingStopUsesWatermarkNotAvgPriceDenominator(t *testing.T) {
	cfg := baseRiskConfig()
	cfg.TakeProfit = decimal.NewFromFloat(0.5) // keep the 40% open pnl from triggering take-profit first
	cfg.WideTrailTrigger = decimal.NewFromFloat(0.15)
	cfg.WideTrailPct = decimal.NewFromFloat(0.08)
	positions := map[string]*types.Position{
		"AAPL": {Symbol: "AAPL", Quantity: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(100), HighestPrice: decimal.NewFromInt(150), CurrentPrice: decimal.NewFromInt(140)},
	}
	equity := decimal.NewFromInt(50000)

	exits := CheckExits(positions, nil, equity, cfg)
	if len(exits) != 0 {
		t.Fatalf("expected no forced exit, got %+v", exits)
	}
}

func TestCheckMaxPositionsSortsByAbsScoreDesc(t *testing.T) {
	plans := []types.Plan{
		{Symbol: "A", Score: decimal.NewFromFloat(0.2)},
		{Symbol: "B", Score: decimal.NewFromFloat(-0.6)},
		{Symbol: "C", Score: decimal.NewFromFloat(0.4)},
	}
	got := CheckMaxPositions(plans, 1, 3)
	if len(got) != 2 {
		t.Fatalf("expected 2 slots available, got %d", len(got))
	}
	if got[0].Symbol != "B" || got[1].Symbol != "C" {
		t.Errorf("expected B,C order by |score| desc, got %s,%s", got[0].Symbol, got[1].Symbol)
	}
}
