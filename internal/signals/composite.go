package signals

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// EffectiveWeights centralizes the news-absent renormalization spec §9's
// design notes call for: when news is unavailable or configured with
// zero weight, the remaining three weights are renormalized so the
// composite stays calibrated against trade_threshold.
func EffectiveWeights(components types.SignalComponents, cfg config.SignalWeightsConfig) (types.SignalWeights, decimal.Decimal) {
	newsActive := !cfg.News.IsZero() && !components.RawNews.IsZero()

	mom, mean, brk, news := cfg.Momentum, cfg.MeanRev, cfg.Breakout, cfg.News
	if !newsActive {
		news = decimal.Zero
		sumRest := mom.Add(mean).Add(brk)
		if sumRest.IsPositive() {
			total := cfg.Momentum.Add(cfg.MeanRev).Add(cfg.Breakout).Add(cfg.News)
			scale := total.Div(sumRest)
			mom = mom.Mul(scale)
			mean = mean.Mul(scale)
			brk = brk.Mul(scale)
		}
	}

	weights := types.SignalWeights{Momentum: mom, MeanRev: mean, Breakout: brk, News: news}
	composite := components.Momentum.Mul(mom).
		Add(components.MeanRev.Mul(mean)).
		Add(components.Breakout.Mul(brk)).
		Add(components.News.Mul(news))

	denom := mom.Add(mean).Add(brk).Add(news)
	if denom.IsPositive() {
		composite = composite.Div(denom)
	}

	return weights, composite
}
