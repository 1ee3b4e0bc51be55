package regime

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// SimpleRegime classifies SPY trend vs its 20-period SMA (bull/bear/
// sideways at +-1%) combined with a VIX>25 "fear" flag, matching
// original_source/src/trading_floor/regime.py exactly. Workflow step 3
// consults this directly (independent of the HMM shadow path).
func SimpleRegime(spyBars []types.Bar, vixBars []types.Bar) (label string, isDowntrend bool, isFear bool) {
	if len(spyBars) < 20 {
		return "unknown", false, false
	}
	sum := decimal.Zero
	tail := spyBars[len(spyBars)-20:]
	for _, b := range tail {
		sum = sum.Add(b.Close)
	}
	smaVal := sum.Div(decimal.NewFromInt(20))
	last := spyBars[len(spyBars)-1].Close

	var spyTrend string
	threshold := decimal.NewFromFloat(0.01)
	diff := last.Sub(smaVal).Div(smaVal)
	switch {
	case diff.GreaterThan(threshold):
		spyTrend = "bull"
	case diff.LessThan(threshold.Neg()):
		spyTrend = "bear"
		isDowntrend = true
	default:
		spyTrend = "sideways"
	}

	vixLevel := "normal"
	if len(vixBars) > 0 {
		vix := vixBars[len(vixBars)-1].Close
		if vix.GreaterThan(decimal.NewFromInt(25)) {
			vixLevel = "fear"
			isFear = true
		}
	}

	return fmt.Sprintf("%s_%s_vol", spyTrend, vixLevel), isDowntrend, isFear
}
