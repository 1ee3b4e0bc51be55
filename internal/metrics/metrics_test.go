package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/workflow"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func TestObserveSetsGaugesFromReport(t *testing.T) {
	r := New(config.MetricsConfig{})
	report := &workflow.InvocationReport{
		RegimeLabel:     "risk_on",
		CandidatesTotal: 12,
		PlansExecuted:   3,
		ForcedExits:     1,
		Rewards: []workflow.Reward{
			{Symbol: "AAPL", Side: types.OrderSideBuy, PnL: decimal.NewFromInt(100)},
			{Symbol: "MSFT", Side: types.OrderSideSell, PnL: decimal.NewFromInt(-40)},
		},
	}

	r.Observe(report, 2*time.Second)

	if got := testutil.ToFloat64(r.candidatesTotal); got != 12 {
		t.Errorf("expected candidatesTotal 12, got %v", got)
	}
	if got := testutil.ToFloat64(r.plansExecuted); got != 3 {
		t.Errorf("expected plansExecuted 3, got %v", got)
	}
	if got := testutil.ToFloat64(r.realizedPnL); got != 60 {
		t.Errorf("expected realizedPnL 60, got %v", got)
	}
	if got := testutil.ToFloat64(r.skipped); got != 0 {
		t.Errorf("expected skipped 0 for a traded invocation, got %v", got)
	}
}

func TestObserveMarksSkippedInvocations(t *testing.T) {
	r := New(config.MetricsConfig{})
	report := &workflow.InvocationReport{SkipReason: "weekend"}

	r.Observe(report, time.Second)

	if got := testutil.ToFloat64(r.skipped); got != 1 {
		t.Errorf("expected skipped 1 when SkipReason is set, got %v", got)
	}
}

func TestPushIsNoOpWithoutGatewayURL(t *testing.T) {
	r := New(config.MetricsConfig{})
	if err := r.Push(); err != nil {
		t.Errorf("expected no-op push with blank gateway URL, got %v", err)
	}
}
