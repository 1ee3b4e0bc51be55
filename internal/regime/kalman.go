// Package regime implements the shadow model runner: a per-symbol Kalman
// filter and a shared 3-state HMM regime detector, plus the simple
// SPY/VIX regime classification Workflow consults directly. Logged only,
// never action-driving (spec §4.5).
//
// No Go example in the pack implements a Kalman filter; this is ported
// directly from original_source/src/trading_floor/kalman.py. The state
// is fixed at 2 dimensions, so the linear algebra is hand-rolled scalar
// math rather than a matrix library (see DESIGN.md).
package regime

import (
	"math"

	"github.com/shopspring/decimal"
)

// KalmanOutput is one filter update's result.
type KalmanOutput struct {
	Level       float64
	Trend       float64
	Uncertainty float64
	Upper       float64
	Lower       float64
	Signal      float64
}

// KalmanFilter tracks a 2-state [level, trend] random walk with constant
// velocity against a single observed price, per original_source/kalman.py.
type KalmanFilter struct {
	processVariance     float64
	measurementVariance float64

	initialized bool
	x           [2]float64    // [level, trend]
	p           [2][2]float64 // covariance
	q           [2][2]float64 // process noise, adapted over time
}

// NewKalmanFilter constructs a filter with the configured process and
// measurement variances.
func NewKalmanFilter(processVariance, measurementVariance decimal.Decimal) *KalmanFilter {
	pv := processVariance.InexactFloat64()
	return &KalmanFilter{
		processVariance:     pv,
		measurementVariance: measurementVariance.InexactFloat64(),
		q:                   [2][2]float64{{pv, 0}, {0, pv * 0.1}},
	}
}

// Update ingests one new price observation and returns the filtered
// state. F=[[1,1],[0,1]], H=[1,0], matching original_source exactly.
func (k *KalmanFilter) Update(price float64) KalmanOutput {
	if !k.initialized {
		k.x = [2]float64{price, 0}
		k.p = [2][2]float64{{k.measurementVariance, 0}, {0, k.measurementVariance}}
		k.initialized = true
		return k.output(price)
	}

	// Predict: x' = F x ; P' = F P F^T + Q
	xPredLevel := k.x[0] + k.x[1]
	xPredTrend := k.x[1]

	// F P F^T for F=[[1,1],[0,1]]:
	p00 := k.p[0][0] + k.p[0][1] + k.p[1][0] + k.p[1][1]
	p01 := k.p[0][1] + k.p[1][1]
	p10 := k.p[1][0] + k.p[1][1]
	p11 := k.p[1][1]

	pPred := [2][2]float64{
		{p00 + k.q[0][0], p01 + k.q[0][1]},
		{p10 + k.q[1][0], p11 + k.q[1][1]},
	}

	// Update: innovation y = z - H x'; S = H P' H^T + R; K = P' H^T / S
	innovation := price - xPredLevel
	s := pPred[0][0] + k.measurementVariance
	if s == 0 {
		s = 1e-9
	}
	k0 := pPred[0][0] / s
	k1 := pPred[1][0] / s

	k.x[0] = xPredLevel + k0*innovation
	k.x[1] = xPredTrend + k1*innovation

	// P = (I - K H) P'
	k.p[0][0] = (1 - k0) * pPred[0][0]
	k.p[0][1] = (1 - k0) * pPred[0][1]
	k.p[1][0] = pPred[1][0] - k1*pPred[0][0]
	k.p[1][1] = pPred[1][1] - k1*pPred[0][1]

	// Adaptive Q: scale toward recent innovation magnitude, learning
	// rate 0.05, per original_source/kalman.py.
	const alpha = 0.05
	innovationVar := innovation * innovation
	adaptiveScale := math.Max(1.0, innovationVar/s)
	k.q[0][0] = k.q[0][0]*(1-alpha) + alpha*adaptiveScale*k.processVariance
	k.q[1][1] = k.q[1][1]*(1-alpha) + alpha*adaptiveScale*k.processVariance*0.1

	return k.output(price)
}

func (k *KalmanFilter) output(price float64) KalmanOutput {
	uncertainty := math.Sqrt(math.Max(k.p[0][0], 0))
	level := k.x[0]
	trend := k.x[1]
	signal := 0.0
	if uncertainty > 1e-9 {
		signal = (price - level) / uncertainty
	}
	return KalmanOutput{
		Level:       level,
		Trend:       trend,
		Uncertainty: uncertainty,
		Upper:       level + 2*uncertainty,
		Lower:       level - 2*uncertainty,
		Signal:      signal,
	}
}
