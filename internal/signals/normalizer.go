package signals

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// Family identifies one of the four signal families the Normalizer keeps
// an independent rolling buffer for. Buffers are per-family, not
// per-symbol, matching original_source/signal_normalizer.py.
type Family string

const (
	FamilyMomentum Family = "momentum"
	FamilyMeanRev  Family = "meanrev"
	FamilyBreakout Family = "breakout"
	FamilyNews     Family = "news"
)

// Normalizer holds a rolling buffer of raw scores per signal family and
// produces a z-score clamped to [-1,1], falling back to tanh(raw*100)
// when fewer than 10 samples exist or the window has zero variance
// (spec §4.3).
type Normalizer struct {
	mu       sync.Mutex
	lookback int
	buffers  map[Family][]float64
}

// NewNormalizer constructs a Normalizer with the configured rolling
// window length.
func NewNormalizer(lookback int) *Normalizer {
	return &Normalizer{lookback: lookback, buffers: map[Family][]float64{}}
}

// Normalize records raw into family's buffer and returns the normalized
// scalar.
func (n *Normalizer) Normalize(family Family, raw decimal.Decimal) decimal.Decimal {
	n.mu.Lock()
	defer n.mu.Unlock()

	buf := append(n.buffers[family], raw.InexactFloat64())
	if len(buf) > n.lookback {
		buf = buf[len(buf)-n.lookback:]
	}
	n.buffers[family] = buf

	if len(buf) < 10 {
		return normalizeTanh(raw)
	}

	mean := 0.0
	for _, v := range buf {
		mean += v
	}
	mean /= float64(len(buf))

	variance := 0.0
	for _, v := range buf {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(buf))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return normalizeTanh(raw)
	}

	z := (raw.InexactFloat64() - mean) / stddev
	normalized := z / 3.0
	return clamp(decimal.NewFromFloat(normalized), decimal.NewFromInt(-1), decimal.NewFromInt(1))
}
