package challenger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/store"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// Seed scenario 5: history {-12,-7,-4}, max_consecutive_losses=3, new BUY
// score +0.40 -> blocked (block severity), no trade row.
func TestConsecutiveLossesBlocks(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for _, pnl := range []float64{-12, -7, -4} {
		if _, err := st.InsertTrade(ctx, "AAPL", types.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromFloat(pnl), decimal.NewFromFloat(0.4), nil); err != nil {
			t.Fatalf("seed trade: %v", err)
		}
	}

	plan := types.Plan{
		Symbol: "AAPL",
		Side:   types.OrderSideBuy,
		Score:  decimal.NewFromFloat(0.40),
		Components: types.SignalComponents{
			Momentum: decimal.NewFromFloat(0.4),
			MeanRev:  decimal.NewFromFloat(0.1),
			Breakout: decimal.NewFromFloat(0.3),
			News:     decimal.NewFromFloat(0.2),
		},
		WeightsUsed: types.SignalWeights{
			Momentum: decimal.NewFromFloat(0.4),
			MeanRev:  decimal.NewFromFloat(0.2),
			Breakout: decimal.NewFromFloat(0.3),
			News:     decimal.NewFromFloat(0.1),
		},
	}

	challenges, outcome, err := Evaluate(ctx, st, plan, config.ChallengesConfig{MaxConsecutiveLosses: 3}, HMMRead{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != OutcomeReject {
		t.Fatalf("expected reject outcome, got %s", outcome)
	}
	blocked := false
	for _, c := range challenges {
		if c.Severity == SeverityBlock {
			blocked = true
		}
	}
	if !blocked {
		t.Error("expected a block-severity challenge for consecutive losses")
	}
}

func TestZeroWarnsPasses(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	plan := types.Plan{
		Symbol: "MSFT",
		Side:   types.OrderSideBuy,
		Score:  decimal.NewFromFloat(0.3),
		Components: types.SignalComponents{
			Momentum: decimal.NewFromFloat(0.3),
			MeanRev:  decimal.NewFromFloat(0.25),
			Breakout: decimal.NewFromFloat(0.28),
			News:     decimal.NewFromFloat(0.3),
		},
		WeightsUsed: types.SignalWeights{
			Momentum: decimal.NewFromFloat(0.4),
			MeanRev:  decimal.NewFromFloat(0.2),
			Breakout: decimal.NewFromFloat(0.3),
			News:     decimal.NewFromFloat(0.1),
		},
	}

	_, outcome, err := Evaluate(ctx, st, plan, config.ChallengesConfig{DisagreementThreshold: decimal.NewFromFloat(1.0), MaxConsecutiveLosses: 3}, HMMRead{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome != OutcomePass {
		t.Fatalf("expected pass outcome, got %s", outcome)
	}
}
