// Package config loads the engine's single hierarchical configuration
// document (spec §6) via viper into strongly-typed sections.
package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// DataConfig controls bar fetching.
type DataConfig struct {
	Interval string `mapstructure:"interval"`
	Lookback int    `mapstructure:"lookback"`
}

// HoursConfig controls the trading window.
type HoursConfig struct {
	TZ       string   `mapstructure:"tz"`
	Start    string   `mapstructure:"start"` // "HH:MM"
	End      string   `mapstructure:"end"`
	Holidays []string `mapstructure:"holidays"` // "YYYY-MM-DD"
}

// SignalWeightsConfig is the configured (pre-renormalization) weights.
type SignalWeightsConfig struct {
	Momentum decimal.Decimal `mapstructure:"momentum"`
	MeanRev  decimal.Decimal `mapstructure:"meanrev"`
	Breakout decimal.Decimal `mapstructure:"breakout"`
	News     decimal.Decimal `mapstructure:"news"`
}

// SignalsConfig controls signal computation, normalization, and sizing
// method selection.
type SignalsConfig struct {
	Weights               SignalWeightsConfig `mapstructure:"weights"`
	TradeThreshold         decimal.Decimal     `mapstructure:"trade_threshold"`
	MomentumShort          int                 `mapstructure:"momentum_short"`
	BreakoutLookback       int                 `mapstructure:"breakout_lookback"`
	MeanRevLong            int                 `mapstructure:"meanrev_long"`
	NormLookback           int                 `mapstructure:"norm_lookback"`
	SizingMethod           string              `mapstructure:"sizing_method"` // volatility|fixed_fractional|kelly
	FixedFraction          decimal.Decimal     `mapstructure:"fixed_fraction"`
	CorrelationThreshold   decimal.Decimal     `mapstructure:"correlation_threshold"`
	MaxTradesPerCycle      int                 `mapstructure:"max_trades_per_cycle"`
	PersistenceGateEnabled bool                `mapstructure:"persistence_gate_enabled"`
}

// RiskConfig controls the Risk gate and ExitManager.
type RiskConfig struct {
	Equity                  decimal.Decimal `mapstructure:"equity"`
	MaxPositions             int             `mapstructure:"max_positions"`
	MaxPositionPct           decimal.Decimal `mapstructure:"max_position_pct"`
	StopLoss                 decimal.Decimal `mapstructure:"stop_loss"`
	ATRStopMultiplier        decimal.Decimal `mapstructure:"atr_stop_multiplier"`
	ATRPeriod                int             `mapstructure:"atr_period"`
	MinATRPct                decimal.Decimal `mapstructure:"min_atr_pct"`
	MaxATRPct                decimal.Decimal `mapstructure:"max_atr_pct"`
	TrailingBreakevenTrigger decimal.Decimal `mapstructure:"trailing_breakeven_trigger"`
	TrailingTrigger          decimal.Decimal `mapstructure:"trailing_trigger"`
	TrailingPct              decimal.Decimal `mapstructure:"trailing_pct"`
	WideTrailTrigger         decimal.Decimal `mapstructure:"wide_trail_trigger"`
	WideTrailPct             decimal.Decimal `mapstructure:"wide_trail_pct"`
	TakeProfit               decimal.Decimal `mapstructure:"take_profit"`
	PortfolioKillPct         decimal.Decimal `mapstructure:"portfolio_kill_pct"`
	SectorFilterThreshold    decimal.Decimal `mapstructure:"sector_filter_threshold"`
}

// ExecutionConfig controls simulated-broker fill mechanics.
type ExecutionConfig struct {
	SlippageBps decimal.Decimal `mapstructure:"slippage_bps"`
	Commission  decimal.Decimal `mapstructure:"commission"` // per share
}

// PreExecutionConfig controls the final pre-trade filter stack.
type PreExecutionConfig struct {
	VolumeLookback          int             `mapstructure:"volume_lookback"`
	VolumeMinRatio          decimal.Decimal `mapstructure:"volume_min_ratio"`
	MorningCutoffHour       int             `mapstructure:"morning_cutoff_hour"`
	MorningCutoffMinute     int             `mapstructure:"morning_cutoff_minute"`
	MorningMinScore         decimal.Decimal `mapstructure:"morning_min_score"`
	MorningRequireKalman    bool            `mapstructure:"morning_require_kalman"`
	CryptoMomentumPeriods   int             `mapstructure:"crypto_momentum_periods"`
	CryptoMomentumThreshold decimal.Decimal `mapstructure:"crypto_momentum_threshold"`
	CryptoSymbols           []string        `mapstructure:"crypto_symbols"`
	CryptoSectors           []string        `mapstructure:"crypto_sectors"`
	KalmanAgreementRequired bool            `mapstructure:"kalman_agreement_required"`
	MinPrice                decimal.Decimal `mapstructure:"min_price"`
	LastEntryMinutes        int             `mapstructure:"last_entry_minutes"`
	CautionMinScore         decimal.Decimal `mapstructure:"caution_min_score"`
}

// ChallengesConfig controls the Challenger rule set.
type ChallengesConfig struct {
	DisagreementThreshold  decimal.Decimal `mapstructure:"disagreement_threshold"`
	ReentryCooldownMinutes int             `mapstructure:"reentry_cooldown_minutes"`
	MinNewsScore           decimal.Decimal `mapstructure:"min_news_score"`
	MaxConsecutiveLosses   int             `mapstructure:"max_consecutive_losses"`
}

// KalmanConfig controls the shadow Kalman filter.
type KalmanConfig struct {
	ProcessVariance     decimal.Decimal `mapstructure:"process_variance"`
	MeasurementVariance decimal.Decimal `mapstructure:"measurement_variance"`
}

// HMMConfig controls the shadow HMM regime detector.
type HMMConfig struct {
	NStates       int `mapstructure:"n_states"`
	Lookback      int `mapstructure:"lookback"`
	RefitInterval int `mapstructure:"refit_interval"`
}

// ShadowModeConfig controls the shadow model runner.
type ShadowModeConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Kalman  KalmanConfig `mapstructure:"kalman"`
	HMM     HMMConfig    `mapstructure:"hmm"`
}

// AgentMemoryConfig controls per-agent memory.
type AgentMemoryConfig struct {
	Enabled             bool            `mapstructure:"enabled"`
	RollingWindow       int             `mapstructure:"rolling_window"`
	MaxAgeDays          int             `mapstructure:"max_age_days"`
	MinSamples          int             `mapstructure:"min_samples"`
	MaxAdjustment       decimal.Decimal `mapstructure:"max_adjustment"`
	UnderperformThresh  decimal.Decimal `mapstructure:"underperform_threshold"`
	DecayHalflifeDays   decimal.Decimal `mapstructure:"decay_halflife_days"`
	RegimeMatching      bool            `mapstructure:"regime_matching"`
}

// ApprovalConfig controls the human approval gate.
type ApprovalConfig struct {
	Required bool   `mapstructure:"required"`
	File     string `mapstructure:"file"`
}

// LoggingConfig controls log sinks and the store path.
type LoggingConfig struct {
	TradesCSV  string `mapstructure:"trades_csv"`
	EventsCSV  string `mapstructure:"events_csv"`
	SignalsCSV string `mapstructure:"signals_csv"`
	DBPath     string `mapstructure:"db_path"`
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console|json
}

// MetricsConfig controls optional prometheus pushgateway export; the
// engine opens no listen socket (spec §6), so metrics are pushed, not
// scraped.
type MetricsConfig struct {
	PushGatewayURL string `mapstructure:"push_gateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// DocumentsConfig names the cross-process JSON documents Workflow uses
// each invocation (spec §6): the portfolio snapshot, which it reads and
// writes, and the shared regime state produced by the external regime
// monitor, which it only reads.
type DocumentsConfig struct {
	RegimeStateFile       string `mapstructure:"regime_state_file"`
	PortfolioSnapshotFile string `mapstructure:"portfolio_snapshot_file"`
}

// Config is the root document.
type Config struct {
	Data          DataConfig          `mapstructure:"data"`
	Hours         HoursConfig         `mapstructure:"hours"`
	Universe      []string            `mapstructure:"universe"`
	ScoutTopN     int                 `mapstructure:"scout_top_n"`
	Signals       SignalsConfig       `mapstructure:"signals"`
	Risk          RiskConfig          `mapstructure:"risk"`
	Execution     ExecutionConfig     `mapstructure:"execution"`
	PreExecution  PreExecutionConfig  `mapstructure:"pre_execution"`
	Challenges    ChallengesConfig    `mapstructure:"challenges"`
	ShadowMode    ShadowModeConfig    `mapstructure:"shadow_mode"`
	AgentMemory   AgentMemoryConfig   `mapstructure:"agent_memory"`
	Approval      ApprovalConfig      `mapstructure:"approval"`
	Documents     DocumentsConfig     `mapstructure:"documents"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// Default returns a fully-populated Config with the teacher's
// Default*Config idiom: every section has a sane value before the
// document on disk overrides it.
func Default() Config {
	return Config{
		Data:      DataConfig{Interval: "5m", Lookback: 120},
		Hours:     HoursConfig{TZ: "America/New_York", Start: "09:30", End: "16:00"},
		Universe:  []string{},
		ScoutTopN: 10,
		Signals: SignalsConfig{
			Weights: SignalWeightsConfig{
				Momentum: decimal.NewFromFloat(0.35),
				MeanRev:  decimal.NewFromFloat(0.25),
				Breakout: decimal.NewFromFloat(0.25),
				News:     decimal.NewFromFloat(0.15),
			},
			TradeThreshold:       decimal.NewFromFloat(0.15),
			MomentumShort:        10,
			BreakoutLookback:     20,
			MeanRevLong:          50,
			NormLookback:         50,
			SizingMethod:         "volatility",
			FixedFraction:        decimal.NewFromFloat(0.02),
			CorrelationThreshold: decimal.NewFromFloat(0.7),
			MaxTradesPerCycle:    5,
		},
		Risk: RiskConfig{
			Equity:                   decimal.NewFromInt(100000),
			MaxPositions:             10,
			MaxPositionPct:           decimal.NewFromFloat(0.1),
			StopLoss:                 decimal.NewFromFloat(0.02),
			ATRStopMultiplier:        decimal.NewFromFloat(2.0),
			ATRPeriod:                14,
			MinATRPct:                decimal.NewFromFloat(0.002),
			MaxATRPct:                decimal.NewFromFloat(0.08),
			TrailingBreakevenTrigger: decimal.NewFromFloat(0.01),
			TrailingTrigger:          decimal.NewFromFloat(0.025),
			TrailingPct:              decimal.NewFromFloat(0.012),
			WideTrailTrigger:         decimal.NewFromFloat(0.08),
			WideTrailPct:             decimal.NewFromFloat(0.03),
			TakeProfit:               decimal.NewFromFloat(0.15),
			PortfolioKillPct:         decimal.NewFromFloat(0.03),
			SectorFilterThreshold:    decimal.NewFromFloat(-0.3),
		},
		Execution: ExecutionConfig{
			SlippageBps: decimal.NewFromFloat(5),
			Commission:  decimal.NewFromFloat(0.005),
		},
		PreExecution: PreExecutionConfig{
			VolumeLookback:          20,
			VolumeMinRatio:          decimal.NewFromFloat(0.5),
			MorningCutoffHour:       10,
			MorningCutoffMinute:     30,
			MorningMinScore:         decimal.NewFromFloat(0.3),
			MorningRequireKalman:    true,
			CryptoMomentumPeriods:   10,
			CryptoMomentumThreshold: decimal.NewFromFloat(0.05),
			CryptoSymbols:           []string{"COIN", "MSTR", "MARA", "RIOT"},
			CryptoSectors:           []string{"crypto"},
			KalmanAgreementRequired: false,
			MinPrice:                decimal.NewFromFloat(2),
			LastEntryMinutes:        15,
			CautionMinScore:         decimal.NewFromFloat(0.3),
		},
		Challenges: ChallengesConfig{
			DisagreementThreshold:  decimal.NewFromFloat(1.0),
			ReentryCooldownMinutes: 60,
			MinNewsScore:           decimal.NewFromFloat(0.1),
			MaxConsecutiveLosses:   3,
		},
		ShadowMode: ShadowModeConfig{
			Enabled: true,
			Kalman: KalmanConfig{
				ProcessVariance:     decimal.NewFromFloat(0.01),
				MeasurementVariance: decimal.NewFromFloat(1.0),
			},
			HMM: HMMConfig{NStates: 3, Lookback: 252, RefitInterval: 20},
		},
		AgentMemory: AgentMemoryConfig{
			Enabled:            true,
			RollingWindow:      500,
			MaxAgeDays:         90,
			MinSamples:         10,
			MaxAdjustment:      decimal.NewFromFloat(0.3),
			UnderperformThresh: decimal.NewFromFloat(0.25),
			DecayHalflifeDays:  decimal.NewFromFloat(14),
			RegimeMatching:     true,
		},
		Approval: ApprovalConfig{Required: true, File: "approval.json"},
		Documents: DocumentsConfig{
			RegimeStateFile:       "regime_state.json",
			PortfolioSnapshotFile: "portfolio.json",
		},
		Logging: LoggingConfig{
			DBPath: "engine.db",
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML document at path into Config, overlaying Default().
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decimalDecodeHook)); err != nil {
		return cfg, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if len(cfg.Universe) == 0 {
		return cfg, fmt.Errorf("config %s: universe must not be empty", path)
	}
	return cfg, nil
}
