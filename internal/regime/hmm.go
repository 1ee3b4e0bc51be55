package regime

import "math"

// HMM state indices, matching original_source/src/trading_floor/hmm.py.
const (
	StateBull = 0
	StateBear = 1
	StateTransition = 2
)

var stateLabels = [3]string{"bull", "bear", "transition"}

var binEdges = [6]float64{-2, -1, -0.5, 0.5, 1, 2}

const nBins = 7

// HMMRegimeDetector is a 3-state (bull, bear, transition) hidden Markov
// model over 7-bin z-scored return observations, fit via scaled
// Baum-Welch. Ported from original_source/src/trading_floor/hmm.py,
// extending the teacher's internal/regime/detector.go forward-algorithm
// skeleton with real Baum-Welch in place of its simplified
// exponential-smoothing update.
type HMMRegimeDetector struct {
	pi [3]float64
	a  [3][3]float64
	b  [3][nBins]float64

	fitted bool
	cyclesSinceRefit int
	refitInterval    int
}

// NewHMMRegimeDetector seeds pi/A/B favoring persistence, matching
// original_source's initialization exactly.
func NewHMMRegimeDetector(refitInterval int) *HMMRegimeDetector {
	h := &HMMRegimeDetector{refitInterval: refitInterval}
	h.pi = [3]float64{0.34, 0.33, 0.33}
	h.a = [3][3]float64{
		{0.90, 0.05, 0.05},
		{0.05, 0.85, 0.10},
		{0.30, 0.30, 0.40},
	}
	// Emissions skewed per state: bull favors high bins, bear favors
	// low bins, transition near-uniform.
	h.b = [3][nBins]float64{
		{0.03, 0.05, 0.07, 0.15, 0.20, 0.25, 0.25},
		{0.25, 0.25, 0.20, 0.15, 0.07, 0.05, 0.03},
		{1.0 / 7, 1.0 / 7, 1.0 / 7, 1.0 / 7, 1.0 / 7, 1.0 / 7, 1.0 / 7},
	}
	return h
}

// discretize z-scores a return series and buckets into 7 bins via the
// fixed edges {-2,-1,-.5,.5,1,2}.
func discretize(returns []float64) []int {
	if len(returns) == 0 {
		return nil
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		stddev = 1e-9
	}

	obs := make([]int, len(returns))
	for i, r := range returns {
		z := (r - mean) / stddev
		bin := 0
		for bin < len(binEdges) && z > binEdges[bin] {
			bin++
		}
		obs[i] = bin
	}
	return obs
}

// forward runs the scaled forward algorithm, returning per-step scaled
// alpha and the scaling factors (for backward/Baum-Welch reuse).
func (h *HMMRegimeDetector) forward(obs []int) (alpha [][3]float64, c []float64) {
	t := len(obs)
	alpha = make([][3]float64, t)
	c = make([]float64, t)

	for s := 0; s < 3; s++ {
		alpha[0][s] = h.pi[s] * h.b[s][obs[0]]
		c[0] += alpha[0][s]
	}
	if c[0] == 0 {
		c[0] = 1e-300
	}
	for s := 0; s < 3; s++ {
		alpha[0][s] /= c[0]
	}

	for i := 1; i < t; i++ {
		for s := 0; s < 3; s++ {
			sum := 0.0
			for sp := 0; sp < 3; sp++ {
				sum += alpha[i-1][sp] * h.a[sp][s]
			}
			alpha[i][s] = sum * h.b[s][obs[i]]
			c[i] += alpha[i][s]
		}
		if c[i] == 0 {
			c[i] = 1e-300
		}
		for s := 0; s < 3; s++ {
			alpha[i][s] /= c[i]
		}
	}
	return alpha, c
}

func (h *HMMRegimeDetector) backward(obs []int, c []float64) [][3]float64 {
	t := len(obs)
	beta := make([][3]float64, t)
	for s := 0; s < 3; s++ {
		beta[t-1][s] = 1.0
	}
	for i := t - 2; i >= 0; i-- {
		for s := 0; s < 3; s++ {
			sum := 0.0
			for sp := 0; sp < 3; sp++ {
				sum += h.a[s][sp] * h.b[sp][obs[i+1]] * beta[i+1][sp]
			}
			beta[i][s] = sum / c[i+1]
		}
	}
	return beta
}

// Fit runs ≤20 iterations of scaled Baum-Welch with 1e-4 convergence
// tolerance and ε=0.05 emission smoothing after every M-step, matching
// original_source exactly.
func (h *HMMRegimeDetector) Fit(returns []float64) {
	obs := discretize(returns)
	if len(obs) < 10 {
		return
	}
	t := len(obs)
	const tol = 1e-4
	const maxIter = 20
	const eps = 0.05

	for iter := 0; iter < maxIter; iter++ {
		alpha, c := h.forward(obs)
		beta := h.backward(obs, c)

		gamma := make([][3]float64, t)
		for i := 0; i < t; i++ {
			for s := 0; s < 3; s++ {
				gamma[i][s] = alpha[i][s] * beta[i][s]
			}
			sum := gamma[i][0] + gamma[i][1] + gamma[i][2]
			if sum > 0 {
				for s := 0; s < 3; s++ {
					gamma[i][s] /= sum
				}
			}
		}

		xiSum := [3][3]float64{}
		for i := 0; i < t-1; i++ {
			for s := 0; s < 3; s++ {
				for sp := 0; sp < 3; sp++ {
					xiSum[s][sp] += alpha[i][s] * h.a[s][sp] * h.b[sp][obs[i+1]] * beta[i+1][sp]
				}
			}
		}

		newPi := gamma[0]

		var newA [3][3]float64
		for s := 0; s < 3; s++ {
			rowSum := 0.0
			for i := 0; i < t-1; i++ {
				rowSum += gamma[i][s]
			}
			if rowSum == 0 {
				rowSum = 1e-300
			}
			for sp := 0; sp < 3; sp++ {
				newA[s][sp] = xiSum[s][sp] / rowSum
			}
		}

		var newB [3][nBins]float64
		for s := 0; s < 3; s++ {
			denom := 0.0
			for i := 0; i < t; i++ {
				denom += gamma[i][s]
			}
			if denom == 0 {
				denom = 1e-300
			}
			for bin := 0; bin < nBins; bin++ {
				numer := 0.0
				for i := 0; i < t; i++ {
					if obs[i] == bin {
						numer += gamma[i][s]
					}
				}
				newB[s][bin] = numer / denom
			}
			// Smoothing: B = B*0.95 + 0.05/n_bins, applied after every
			// M-step so emissions never collapse to zero.
			for bin := 0; bin < nBins; bin++ {
				newB[s][bin] = newB[s][bin]*(1-eps) + eps/float64(nBins)
			}
		}

		delta := 0.0
		for s := 0; s < 3; s++ {
			for sp := 0; sp < 3; sp++ {
				delta = math.Max(delta, math.Abs(newA[s][sp]-h.a[s][sp]))
			}
			for bin := 0; bin < nBins; bin++ {
				delta = math.Max(delta, math.Abs(newB[s][bin]-h.b[s][bin]))
			}
		}

		h.pi = newPi
		h.a = newA
		h.b = newB

		if delta < tol {
			break
		}
	}
	h.fitted = true
}

// ShouldRefit reports whether enough cycles have elapsed to refit, and
// advances the internal counter.
func (h *HMMRegimeDetector) ShouldRefit() bool {
	h.cyclesSinceRefit++
	if h.cyclesSinceRefit >= h.refitInterval {
		h.cyclesSinceRefit = 0
		return true
	}
	return !h.fitted
}

// Prediction is the result of a live forward-algorithm predict call.
type Prediction struct {
	StateLabel     string
	Confidence     float64
	Probabilities  [3]float64
	TransitionRisk float64
}

// Predict runs the forward algorithm over the most recent returns and
// returns the filtered posterior, argmax label, confidence, and
// transition_risk = sum_i p(state=i) * A[i][bear].
func (h *HMMRegimeDetector) Predict(returns []float64) Prediction {
	obs := discretize(returns)
	if len(obs) == 0 {
		return defaultPrediction()
	}
	alpha, _ := h.forward(obs)
	last := alpha[len(alpha)-1]

	argmax := 0
	for s := 1; s < 3; s++ {
		if last[s] > last[argmax] {
			argmax = s
		}
	}

	transitionRisk := 0.0
	for s := 0; s < 3; s++ {
		transitionRisk += last[s] * h.a[s][StateBear]
	}

	return Prediction{
		StateLabel:     stateLabels[argmax],
		Confidence:     last[argmax],
		Probabilities:  last,
		TransitionRisk: transitionRisk,
	}
}

func defaultPrediction() Prediction {
	return Prediction{
		StateLabel:    stateLabels[StateTransition],
		Confidence:    1.0 / 3,
		Probabilities: [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3},
	}
}
