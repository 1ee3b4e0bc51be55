package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/regime"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func hoursCfg() config.HoursConfig {
	return config.HoursConfig{TZ: "UTC", Start: "09:30", End: "16:00", Holidays: []string{"2026-07-04"}}
}

func TestTradingHoursGateIsIdempotent(t *testing.T) {
	cfg := hoursCfg()
	now := time.Date(2026, 7, 2, 12, 0, 0, 0, time.UTC) // Thursday, within window

	ok1, reason1 := withinTradingHours(now, cfg)
	ok2, reason2 := withinTradingHours(now, cfg)

	if ok1 != ok2 || reason1 != reason2 {
		t.Fatalf("gate not idempotent: (%v,%q) vs (%v,%q)", ok1, reason1, ok2, reason2)
	}
	if !ok1 {
		t.Fatalf("expected pass during trading window, got reason %q", reason1)
	}
}

func TestTradingHoursGateRejectsWeekend(t *testing.T) {
	cfg := hoursCfg()
	saturday := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)

	ok, reason := withinTradingHours(saturday, cfg)
	if ok {
		t.Fatalf("expected weekend to fail before holiday check, got pass")
	}
	if reason != "weekend" {
		t.Errorf("expected weekend reason, got %q", reason)
	}
}

func TestTradingHoursGateRejectsOutsideWindow(t *testing.T) {
	cfg := hoursCfg()
	beforeOpen := time.Date(2026, 7, 2, 8, 0, 0, 0, time.UTC)

	ok, reason := withinTradingHours(beforeOpen, cfg)
	if ok {
		t.Fatalf("expected pre-market time to fail")
	}
	if reason != "outside trading window" {
		t.Errorf("expected outside-window reason, got %q", reason)
	}
}

func TestSharesForClosesFullPositionOnForcedExit(t *testing.T) {
	pos := &types.Position{Symbol: "AAPL", Quantity: decimal.NewFromInt(-25)}
	plan := types.Plan{Symbol: "AAPL", Side: types.OrderSideBuy, Kind: types.PlanKindExit}

	qty := sharesFor(plan, decimal.NewFromInt(100), pos)
	if !qty.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected forced exit to close full position size 25, got %s", qty)
	}
}

func TestSharesForSizesEntryFromTargetValue(t *testing.T) {
	plan := types.Plan{Symbol: "AAPL", Side: types.OrderSideBuy, Kind: types.PlanKindEntry, TargetValue: decimal.NewFromInt(1000)}

	qty := sharesFor(plan, decimal.NewFromInt(100), nil)
	if !qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected 10 shares from $1000 target at $100, got %s", qty)
	}
}

// hmmReadFor must thread Shadow.Run's per-symbol HMM posterior into
// Challenger's HMMRead, not the permanent zero-value it used to get.
func TestHMMReadForThreadsShadowRecordProbabilities(t *testing.T) {
	shadowRecords := map[string]types.ShadowRecord{
		"AAPL": {HMMBullProb: decimal.NewFromFloat(0.2), HMMBearProb: decimal.NewFromFloat(0.82)},
	}

	hmm := hmmReadFor(shadowRecords, "AAPL")
	if !hmm.BearProb.Equal(decimal.NewFromFloat(0.82)) {
		t.Errorf("expected bear prob 0.82 threaded from the shadow record, got %s", hmm.BearProb)
	}
	if !hmm.BullProb.Equal(decimal.NewFromFloat(0.2)) {
		t.Errorf("expected bull prob 0.2 threaded from the shadow record, got %s", hmm.BullProb)
	}

	zero := hmmReadFor(shadowRecords, "MSFT")
	if !zero.BullProb.IsZero() || !zero.BearProb.IsZero() {
		t.Errorf("expected zero-valued read for a symbol absent from shadowRecords, got %+v", zero)
	}
}

// preExecInput must populate the live-HMM fallback fields whenever the
// shared regime_state.json document is absent, since nothing in this
// engine ever writes that file.
func TestPreExecInputPopulatesLiveHMMFallbackWhenRegimeStateAbsent(t *testing.T) {
	deps := Dependencies{
		Config: config.Config{
			Documents: config.DocumentsConfig{RegimeStateFile: "/nonexistent/regime_state.json"},
		},
		Shadow: regime.NewRunner(decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.1), 50, zap.NewNop()),
	}
	plan := types.Plan{Symbol: "AAPL", Side: types.OrderSideBuy}
	livePred := regime.Prediction{StateLabel: "bear", Confidence: 0.64}

	in := preExecInput(deps, plan, time.Now(), time.UTC, "bull", map[string]decimal.Decimal{}, map[string][]types.Bar{}, livePred)

	if in.RegimeState != nil {
		t.Fatalf("expected nil RegimeState for a missing document, got %+v", in.RegimeState)
	}
	if in.LiveHMMLabel != "bear" {
		t.Errorf("expected LiveHMMLabel populated from LivePredict, got %q", in.LiveHMMLabel)
	}
	if !in.LiveHMMConf.Equal(decimal.NewFromFloat(0.64)) {
		t.Errorf("expected LiveHMMConf 0.64 from LivePredict, got %s", in.LiveHMMConf)
	}
}
