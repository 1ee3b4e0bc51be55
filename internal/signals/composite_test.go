package signals

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func weightsCfg() config.SignalWeightsConfig {
	return config.SignalWeightsConfig{Momentum: d(0.3), MeanRev: d(0.3), Breakout: d(0.2), News: d(0.2)}
}

func TestEffectiveWeightsRenormalizesWhenNewsAbsent(t *testing.T) {
	components := types.SignalComponents{Momentum: d(0.5), MeanRev: d(0.2), Breakout: d(-0.1), RawNews: decimal.Zero}

	weights, composite := EffectiveWeights(components, weightsCfg())

	if !weights.News.IsZero() {
		t.Errorf("expected news weight zeroed when news absent, got %s", weights.News)
	}
	if !weights.Momentum.Equal(d(0.375)) {
		t.Errorf("expected momentum weight renormalized to 0.375, got %s", weights.Momentum)
	}
	if !weights.MeanRev.Equal(d(0.375)) {
		t.Errorf("expected meanrev weight renormalized to 0.375, got %s", weights.MeanRev)
	}
	if !weights.Breakout.Equal(d(0.25)) {
		t.Errorf("expected breakout weight renormalized to 0.25, got %s", weights.Breakout)
	}
	if !composite.Equal(d(0.2375)) {
		t.Errorf("expected composite 0.2375, got %s", composite)
	}
}

func TestEffectiveWeightsUsesConfiguredWeightsWhenNewsPresent(t *testing.T) {
	components := types.SignalComponents{
		Momentum: d(0.5), MeanRev: d(0.2), Breakout: d(-0.1),
		News: d(0.4), RawNews: d(0.5),
	}

	weights, composite := EffectiveWeights(components, weightsCfg())

	if !weights.News.Equal(d(0.2)) {
		t.Errorf("expected configured news weight 0.2 when news present, got %s", weights.News)
	}
	if !composite.Equal(d(0.27)) {
		t.Errorf("expected composite 0.27, got %s", composite)
	}
}
