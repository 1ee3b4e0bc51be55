// Package preexec implements the final gate stack run immediately
// before Portfolio.Execute (spec §4.14): regime re-check, volume
// confirmation, time-of-day double-gate, crypto correlation, Kalman
// agreement, minimum price, and last-entry cutoff. Ported from
// original_source/src/trading_floor/pre_execution_filters.py.
package preexec

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Check is one filter's individually-reported result, matching the
// Python source's "reasons" list shape.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Input bundles everything the filter stack needs for one candidate.
type Input struct {
	Symbol           string
	Side             types.OrderSide
	Score            decimal.Decimal
	Price            decimal.Decimal
	Now              time.Time
	TZ               *time.Location
	RegimeState      *types.RegimeState // shared regime-monitor document, nil if unavailable
	LiveHMMLabel     string             // live HMM fallback when RegimeState is nil
	LiveHMMConf      decimal.Decimal
	OriginalRegime   string // regime label recorded at signal generation time
	CurrentVolume    decimal.Decimal
	AvgVolume        decimal.Decimal // trailing volume_lookback average, excluding current bar
	IsCryptoAdjacent bool
	BTCPrices        []decimal.Decimal // ascending, most recent last
	KalmanTrend      decimal.Decimal
	HasKalmanData    bool
	WindowEnd        string // "HH:MM", the trading window's configured end
}

// Run executes all seven filters and returns (proceed, checks). Any
// single failing check blocks the trade, matching run_all_pre_execution_filters.
func Run(in Input, cfg config.PreExecutionConfig) (bool, []Check) {
	checks := []Check{
		checkRegimeRecheck(in),
		checkVolume(in, cfg),
	}
	kalman := checkKalmanAgreement(in, cfg)
	checks = append(checks, kalman)
	checks = append(checks, checkTimeOfDay(in, cfg, kalman))
	checks = append(checks, checkCryptoCorrelation(in, cfg))
	if in.Price.IsPositive() {
		checks = append(checks, checkMinPrice(in, cfg))
	}
	checks = append(checks, checkLastEntryCutoff(in, cfg))

	proceed := true
	for _, c := range checks {
		if !c.Passed {
			proceed = false
		}
	}
	return proceed, checks
}

func checkRegimeRecheck(in Input) Check {
	if rs := in.RegimeState; rs != nil {
		if rs.RegimeChange != nil {
			return Check{Name: "regime", Passed: false, Detail: "regime changed " + rs.RegimeChange.From + "->" + rs.RegimeChange.To + ", trade blocked for safety"}
		}
		threshold := decimal.NewFromFloat(0.7)
		if in.Side == types.OrderSideBuy && rs.HMM.StateLabel == "bear" && rs.HMM.Confidence.GreaterThan(threshold) {
			return Check{Name: "regime", Passed: false, Detail: "BUY blocked: regime monitor says bear"}
		}
		if in.Side == types.OrderSideSell && rs.HMM.StateLabel == "bull" && rs.HMM.Confidence.GreaterThan(threshold) {
			return Check{Name: "regime", Passed: false, Detail: "SELL blocked: regime monitor says bull"}
		}
		if len(rs.History) >= 3 {
			recent := rs.History[len(rs.History)-3:]
			if recent[2].BearProb.Sub(recent[0].BearProb).GreaterThan(decimal.NewFromFloat(0.20)) {
				return Check{Name: "regime", Passed: false, Detail: "bear probability spiking over last 3 readings, trade blocked"}
			}
		}
		return Check{Name: "regime", Passed: true, Detail: "regime OK (from monitor): " + rs.HMM.StateLabel}
	}

	if in.LiveHMMLabel == "" {
		return Check{Name: "regime", Passed: true, Detail: "no regime data for recheck"}
	}
	if in.OriginalRegime != "" && in.OriginalRegime != in.LiveHMMLabel {
		return Check{Name: "regime", Passed: false, Detail: "regime flipped: was " + in.OriginalRegime + ", now " + in.LiveHMMLabel}
	}
	threshold := decimal.NewFromFloat(0.7)
	if in.Side == types.OrderSideBuy && in.LiveHMMLabel == "bear" && in.LiveHMMConf.GreaterThan(threshold) {
		return Check{Name: "regime", Passed: false, Detail: "BUY blocked: HMM says bear regime"}
	}
	if in.Side == types.OrderSideSell && in.LiveHMMLabel == "bull" && in.LiveHMMConf.GreaterThan(threshold) {
		return Check{Name: "regime", Passed: false, Detail: "SELL blocked: HMM says bull regime"}
	}
	return Check{Name: "regime", Passed: true, Detail: "regime OK: " + in.LiveHMMLabel}
}

func checkVolume(in Input, cfg config.PreExecutionConfig) Check {
	if in.AvgVolume.IsZero() {
		return Check{Name: "volume", Passed: true, Detail: "no volume data"}
	}
	ratio := in.CurrentVolume.Div(in.AvgVolume)
	if ratio.LessThan(cfg.VolumeMinRatio) {
		return Check{Name: "volume", Passed: false, Detail: "volume too low vs " + strconv.Itoa(cfg.VolumeLookback) + "-period average"}
	}
	return Check{Name: "volume", Passed: true, Detail: "volume OK"}
}

func checkKalmanAgreement(in Input, cfg config.PreExecutionConfig) Check {
	if !in.HasKalmanData {
		if cfg.KalmanAgreementRequired {
			return Check{Name: "kalman", Passed: false, Detail: "Kalman has no data, required but unavailable"}
		}
		return Check{Name: "kalman", Passed: true, Detail: "no Kalman data (not required)"}
	}
	agrees := (in.Side == types.OrderSideBuy && in.KalmanTrend.IsPositive()) ||
		(in.Side == types.OrderSideSell && in.KalmanTrend.IsNegative())
	if !agrees && cfg.KalmanAgreementRequired {
		return Check{Name: "kalman", Passed: false, Detail: "Kalman disagrees, agreement is mandatory"}
	}
	return Check{Name: "kalman", Passed: true, Detail: "Kalman agreement checked"}
}

func kalmanAgrees(c Check) bool {
	return c.Passed && c.Detail == "Kalman agreement checked"
}

func checkTimeOfDay(in Input, cfg config.PreExecutionConfig, kalman Check) Check {
	now := in.Now
	if in.TZ != nil {
		now = now.In(in.TZ)
	}
	marketOpen := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, now.Location())
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), cfg.MorningCutoffHour, cfg.MorningCutoffMinute, 0, 0, now.Location())
	if now.Before(marketOpen) || now.After(cutoff) {
		return Check{Name: "time", Passed: true, Detail: "outside morning window"}
	}
	if in.Score.Abs().LessThan(cfg.MorningMinScore) {
		return Check{Name: "time", Passed: false, Detail: "morning filter: stronger signal needed before cutoff"}
	}
	if cfg.MorningRequireKalman && in.HasKalmanData && !kalmanAgrees(kalman) {
		return Check{Name: "time", Passed: false, Detail: "morning filter: Kalman agreement mandatory during first hour"}
	}
	return Check{Name: "time", Passed: true, Detail: "morning filter passed"}
}

func checkCryptoCorrelation(in Input, cfg config.PreExecutionConfig) Check {
	if !in.IsCryptoAdjacent {
		return Check{Name: "crypto", Passed: true, Detail: "not crypto-adjacent"}
	}
	n := cfg.CryptoMomentumPeriods
	if len(in.BTCPrices) < n+1 {
		return Check{Name: "crypto", Passed: true, Detail: "insufficient BTC data"}
	}
	last := in.BTCPrices[len(in.BTCPrices)-1]
	ago := in.BTCPrices[len(in.BTCPrices)-1-n]
	if ago.IsZero() {
		return Check{Name: "crypto", Passed: true, Detail: "zero BTC reference price"}
	}
	momentum := last.Sub(ago).Div(ago)
	trendingUp := momentum.GreaterThan(cfg.CryptoMomentumThreshold)
	trendingDown := momentum.LessThan(cfg.CryptoMomentumThreshold.Neg())
	if in.Side == types.OrderSideSell && trendingUp {
		return Check{Name: "crypto", Passed: false, Detail: "shorting while BTC trending up"}
	}
	if in.Side == types.OrderSideBuy && trendingDown {
		return Check{Name: "crypto", Passed: false, Detail: "buying while BTC trending down"}
	}
	return Check{Name: "crypto", Passed: true, Detail: "crypto correlation OK"}
}

func checkMinPrice(in Input, cfg config.PreExecutionConfig) Check {
	if in.Price.LessThan(cfg.MinPrice) {
		return Check{Name: "min_price", Passed: false, Detail: "price below minimum"}
	}
	return Check{Name: "min_price", Passed: true, Detail: "price OK"}
}

func checkLastEntryCutoff(in Input, cfg config.PreExecutionConfig) Check {
	now := in.Now
	loc := now.Location()
	if in.TZ != nil {
		now = now.In(in.TZ)
		loc = in.TZ
	}
	h, m := 11, 30
	if in.WindowEnd != "" {
		if parsed, err := time.Parse("15:04", in.WindowEnd); err == nil {
			h, m = parsed.Hour(), parsed.Minute()
		}
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, loc)
	cutoff := end.Add(-time.Duration(cfg.LastEntryMinutes) * time.Minute)
	if !now.Before(cutoff) {
		return Check{Name: "last_entry", Passed: false, Detail: "last-entry cutoff reached, no new entries"}
	}
	return Check{Name: "last_entry", Passed: true, Detail: "within entry window"}
}
