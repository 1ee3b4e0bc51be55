package regime

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/store"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Runner is the shadow model runner: one Kalman filter per symbol plus a
// single shared HMM regime detector, consulted read-only by pre-exec
// filters and logged every cycle but never action-driving (spec §4.5).
// Grounded on original_source/src/trading_floor/shadow.py for the
// per-(symbol,tick) logging loop that joins Kalman + HMM state.
type Runner struct {
	mu       sync.Mutex
	kalmans  map[string]*KalmanFilter
	hmm      *HMMRegimeDetector
	logger   *zap.Logger

	processVariance     decimal.Decimal
	measurementVariance decimal.Decimal
}

// NewRunner constructs a shadow Runner with the configured Kalman
// variances and HMM refit interval.
func NewRunner(processVariance, measurementVariance decimal.Decimal, refitInterval int, logger *zap.Logger) *Runner {
	return &Runner{
		kalmans:             map[string]*KalmanFilter{},
		hmm:                 NewHMMRegimeDetector(refitInterval),
		logger:              logger.Named("shadow"),
		processVariance:     processVariance,
		measurementVariance: measurementVariance,
	}
}

func (r *Runner) kalmanFor(symbol string) *KalmanFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.kalmans[symbol]
	if !ok {
		k = NewKalmanFilter(r.processVariance, r.measurementVariance)
		r.kalmans[symbol] = k
	}
	return k
}

// RefitHMM refits the shared HMM against a benchmark return series
// (typically SPY) when due, per spec's refit_interval cadence.
func (r *Runner) RefitHMM(benchmarkReturns []float64) {
	if r.hmm.ShouldRefit() && len(benchmarkReturns) >= 10 {
		r.hmm.Fit(benchmarkReturns)
	}
}

// Run ingests one observation per symbol, updates that symbol's Kalman
// filter, predicts the HMM posterior from the benchmark returns, logs a
// ShadowRecord to Store, and returns the records for pre-exec filter
// consumption this cycle.
func (r *Runner) Run(ctx context.Context, st *store.Store, prices map[string]decimal.Decimal, existingSignals map[string]decimal.Decimal, benchmarkReturns []float64, existingRegime string) map[string]types.ShadowRecord {
	pred := r.hmm.Predict(benchmarkReturns)
	out := make(map[string]types.ShadowRecord, len(prices))

	for symbol, price := range prices {
		k := r.kalmanFor(symbol)
		ko := k.Update(price.InexactFloat64())

		rec := types.ShadowRecord{
			Timestamp:         time.Now().UTC(),
			Symbol:            symbol,
			KalmanSignal:      decimal.NewFromFloat(ko.Signal),
			KalmanLevel:       decimal.NewFromFloat(ko.Level),
			KalmanTrend:       decimal.NewFromFloat(ko.Trend),
			KalmanUncertainty: decimal.NewFromFloat(ko.Uncertainty),
			ExistingSignal:    existingSignals[symbol],
			HMMState:          pred.StateLabel,
			HMMBullProb:       decimal.NewFromFloat(pred.Probabilities[StateBull]),
			HMMBearProb:       decimal.NewFromFloat(pred.Probabilities[StateBear]),
			HMMTransProb:      decimal.NewFromFloat(pred.Probabilities[StateTransition]),
			HMMTransitionRisk: decimal.NewFromFloat(pred.TransitionRisk),
			ExistingRegime:    existingRegime,
		}
		if err := st.InsertShadowPrediction(ctx, rec); err != nil {
			r.logger.Warn("shadow prediction write failed", zap.String("symbol", symbol), zap.Error(err))
		}
		out[symbol] = rec
	}
	return out
}

// LivePredict exposes a single live HMM prediction for pre-exec filters'
// fallback path when regime_state.json is absent.
func (r *Runner) LivePredict(benchmarkReturns []float64) Prediction {
	return r.hmm.Predict(benchmarkReturns)
}

// KalmanTrendSign returns the sign of the given symbol's latest Kalman
// trend estimate, used by the PreExecFilters Kalman-agreement check.
func (r *Runner) KalmanTrendSign(symbol string) (sign int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, exists := r.kalmans[symbol]
	if !exists || !k.initialized {
		return 0, false
	}
	if k.x[1] > 0 {
		return 1, true
	}
	if k.x[1] < 0 {
		return -1, true
	}
	return 0, true
}
