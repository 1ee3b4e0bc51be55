package preexec

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func baseCfg() config.PreExecutionConfig {
	return config.PreExecutionConfig{
		VolumeLookback:          20,
		VolumeMinRatio:          decimal.NewFromFloat(1.0),
		MorningCutoffHour:       10,
		MorningCutoffMinute:     30,
		MorningMinScore:         decimal.NewFromFloat(0.6),
		MorningRequireKalman:    true,
		CryptoMomentumPeriods:   10,
		CryptoMomentumThreshold: decimal.NewFromFloat(0.003),
		KalmanAgreementRequired: true,
		MinPrice:                decimal.NewFromFloat(5.0),
		LastEntryMinutes:        30,
	}
}

func TestRegimeChangeBlocks(t *testing.T) {
	in := Input{
		Symbol: "AAPL",
		Side:   types.OrderSideBuy,
		Now:    time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC),
		Price:  decimal.NewFromInt(100),
		RegimeState: &types.RegimeState{
			RegimeChange: &types.RegimeChange{From: "bull", To: "bear", At: time.Now()},
		},
		HasKalmanData: true,
		KalmanTrend:   decimal.NewFromFloat(0.1),
	}
	proceed, checks := Run(in, baseCfg())
	if proceed {
		t.Fatal("expected block on fresh regime change")
	}
	found := false
	for _, c := range checks {
		if c.Name == "regime" && !c.Passed {
			found = true
		}
	}
	if !found {
		t.Error("expected failing regime check")
	}
}

func TestKalmanDisagreementBlocksWhenRequired(t *testing.T) {
	in := Input{
		Symbol:        "AAPL",
		Side:          types.OrderSideBuy,
		Now:           time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC),
		Price:         decimal.NewFromInt(100),
		HasKalmanData: true,
		KalmanTrend:   decimal.NewFromFloat(-0.1),
	}
	proceed, _ := Run(in, baseCfg())
	if proceed {
		t.Fatal("expected block on Kalman disagreement")
	}
}

func TestMinPriceBlocks(t *testing.T) {
	in := Input{
		Symbol:        "PENNY",
		Side:          types.OrderSideBuy,
		Now:           time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC),
		Price:         decimal.NewFromFloat(2.50),
		HasKalmanData: true,
		KalmanTrend:   decimal.NewFromFloat(0.1),
	}
	proceed, _ := Run(in, baseCfg())
	if proceed {
		t.Fatal("expected block on sub-minimum price")
	}
}

func TestAllPassWhenNothingFlagged(t *testing.T) {
	in := Input{
		Symbol:        "AAPL",
		Side:          types.OrderSideBuy,
		Now:           time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC),
		Price:         decimal.NewFromInt(100),
		HasKalmanData: true,
		KalmanTrend:   decimal.NewFromFloat(0.1),
		WindowEnd:     "16:00",
	}
	proceed, checks := Run(in, baseCfg())
	if !proceed {
		t.Fatalf("expected all checks to pass, got %+v", checks)
	}
}
