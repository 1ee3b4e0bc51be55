// Package types provides the shared domain model for the trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Bar is a single OHLCV candle, immutable once constructed, indexed by
// symbol+timestamp by its caller. Timestamp is always tz-aware.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Position is an open holding. Quantity is signed: positive is long,
// negative is short. Zero quantity means the position no longer exists.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	HighestPrice decimal.Decimal `json:"highest_price"`
	LowestPrice  decimal.Decimal `json:"lowest_price"`
	OpenedAt     time.Time       `json:"-"`
}

// IsLong reports whether the position is a long holding.
func (p *Position) IsLong() bool { return p.Quantity.IsPositive() }

// IsShort reports whether the position is a short holding.
func (p *Position) IsShort() bool { return p.Quantity.IsNegative() }

// UnrealizedPnL is the mark-to-market PnL against CurrentPrice.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPrice.Sub(p.AvgPrice).Mul(p.Quantity)
}

// PortfolioState is the persisted snapshot of cash, positions, and equity.
// Invariant: Equity == Cash + sum(qty*current_price) over all positions.
type PortfolioState struct {
	Cash      decimal.Decimal      `json:"cash"`
	Equity    decimal.Decimal      `json:"equity"`
	Positions map[string]*Position `json:"positions"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// SignalComponents holds the four normalized signal scalars for a symbol,
// plus the raw pre-normalization values retained for logging.
type SignalComponents struct {
	Momentum    decimal.Decimal `json:"momentum"`
	MeanRev     decimal.Decimal `json:"meanrev"`
	Breakout    decimal.Decimal `json:"breakout"`
	News        decimal.Decimal `json:"news"`
	RawMomentum decimal.Decimal `json:"raw_momentum"`
	RawMeanRev  decimal.Decimal `json:"raw_meanrev"`
	RawBreakout decimal.Decimal `json:"raw_breakout"`
	RawNews     decimal.Decimal `json:"raw_news"`
}

// SignalWeights is the set of per-component weights actually applied to
// produce a composite score; it may differ from the configured weights
// when a component (typically news) was absent and the rest were
// renormalized to compensate.
type SignalWeights struct {
	Momentum decimal.Decimal `json:"momentum"`
	MeanRev  decimal.Decimal `json:"meanrev"`
	Breakout decimal.Decimal `json:"breakout"`
	News     decimal.Decimal `json:"news"`
}

// PlanKind distinguishes a sized entry candidate from a forced exit. Exit
// plans bypass entry-side gates and execute with priority, replacing the
// teacher-era sentinel-score idiom.
type PlanKind int

const (
	PlanKindEntry PlanKind = iota
	PlanKindExit
)

// Plan is a single candidate order emitted by PM or forced by ExitManager.
type Plan struct {
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Kind        PlanKind        `json:"kind"`
	Score       decimal.Decimal `json:"score"`
	TargetValue decimal.Decimal `json:"target_value"`
	ExitReason  string          `json:"exit_reason,omitempty"`

	MemoryInfluenced bool              `json:"memory_influenced"`
	WeightsUsed      SignalWeights     `json:"weights_used"`
	Components       SignalComponents  `json:"components"`
}

// IsForcedExit reports whether this plan is an ExitManager-originated exit.
func (p *Plan) IsForcedExit() bool { return p.Kind == PlanKindExit }

// ExitStage is the derived arming state of a position's trailing/breakeven
// logic based on peak gain since entry.
type ExitStage string

const (
	ExitStageNone            ExitStage = "none"
	ExitStageArmed           ExitStage = "armed"
	ExitStageBreakevenArmed  ExitStage = "breakeven-armed"
	ExitStageTrailingArmed   ExitStage = "trailing-armed"
)

// ShadowRecord is one append-only row logged by the shadow model runner.
type ShadowRecord struct {
	Timestamp        time.Time       `json:"timestamp"`
	Symbol           string          `json:"symbol"`
	KalmanSignal     decimal.Decimal `json:"kalman_signal"`
	KalmanLevel      decimal.Decimal `json:"kalman_level"`
	KalmanTrend      decimal.Decimal `json:"kalman_trend"`
	KalmanUncertainty decimal.Decimal `json:"kalman_uncertainty"`
	ExistingSignal   decimal.Decimal `json:"existing_signal"`
	HMMState         string          `json:"hmm_state"`
	HMMBullProb      decimal.Decimal `json:"hmm_bull_prob"`
	HMMBearProb      decimal.Decimal `json:"hmm_bear_prob"`
	HMMTransProb     decimal.Decimal `json:"hmm_transition_prob"`
	HMMTransitionRisk decimal.Decimal `json:"hmm_transition_risk"`
	ExistingRegime   string          `json:"existing_regime"`
	ActualReturn1h   decimal.Decimal `json:"actual_return_1h"`
	ActualReturn1d   decimal.Decimal `json:"actual_return_1d"`
	OutcomeFilled    bool            `json:"outcome_filled"`
}

// MemoryOutcome labels how an AgentMemory observation resolved.
type MemoryOutcome string

const (
	MemoryOutcomeWin     MemoryOutcome = "win"
	MemoryOutcomeLoss    MemoryOutcome = "loss"
	MemoryOutcomePending MemoryOutcome = "pending"
)

// AgentMemoryObservation is one append-only row in an agent's memory log.
type AgentMemoryObservation struct {
	AgentName        string          `json:"agent_name"`
	Symbol           string          `json:"symbol"`
	SignalType       string          `json:"signal_type"`
	SignalValue      decimal.Decimal `json:"signal_value"`
	Outcome          MemoryOutcome   `json:"outcome"`
	PnL              decimal.Decimal `json:"pnl"`
	RegimeLabel      string          `json:"regime_label"`
	Confidence       decimal.Decimal `json:"confidence"`
	MemoryInfluenced bool            `json:"memory_influenced"`
	Timestamp        time.Time       `json:"timestamp"`
}

// MemoryDecision is the outcome of AgentMemory's weight-adjustment
// consultation, replacing the teacher-era bare-float-or-nil idiom with a
// closed tagged variant per spec's design notes.
type MemoryDecision struct {
	Action     MemoryDecisionAction
	NewWeight  decimal.Decimal
	Adjustment decimal.Decimal
}

type MemoryDecisionAction int

const (
	MemoryDecisionInsufficient MemoryDecisionAction = iota
	MemoryDecisionAdjust
	MemoryDecisionDisable
)

// RegimeHistoryPoint is one entry in RegimeState's rolling history.
type RegimeHistoryPoint struct {
	Timestamp time.Time       `json:"ts"`
	Label     string          `json:"label"`
	Confidence decimal.Decimal `json:"confidence"`
	BearProb  decimal.Decimal `json:"bear_prob"`
}

// RegimeChange records a transition between the last two HMM-labeled states.
type RegimeChange struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// HMMProbabilities is the 3-state filtered posterior.
type HMMProbabilities struct {
	Bull       decimal.Decimal `json:"bull"`
	Bear       decimal.Decimal `json:"bear"`
	Transition decimal.Decimal `json:"transition"`
}

// HMMSnapshot is the HMM sub-object of RegimeState.
type HMMSnapshot struct {
	StateLabel     string           `json:"state_label"`
	Confidence     decimal.Decimal  `json:"confidence"`
	Probabilities  HMMProbabilities `json:"probabilities"`
	TransitionRisk decimal.Decimal  `json:"transition_risk"`
}

// BTCSnapshot is the btc sub-object of RegimeState.
type BTCSnapshot struct {
	Price      decimal.Decimal `json:"price"`
	Momentum10 decimal.Decimal `json:"momentum_10"`
	Trending   bool            `json:"trending"`
}

// RegimeState is the JSON side-document produced by the regime monitor and
// consulted read-only by the engine (shadow/pre-exec filters).
type RegimeState struct {
	Timestamp    time.Time            `json:"timestamp"`
	HMM          HMMSnapshot          `json:"hmm"`
	SimpleRegime string               `json:"simple_regime"`
	BTC          BTCSnapshot          `json:"btc"`
	History      []RegimeHistoryPoint `json:"history"`
	RegimeChange *RegimeChange        `json:"regime_change,omitempty"`
}

// PerformanceMetrics summarizes a set of trades for reward annotation
// (spec §4.15 step 13), reused from the teacher's reporting shape.
type PerformanceMetrics struct {
	TotalReturn   decimal.Decimal `json:"total_return"`
	WinRate       decimal.Decimal `json:"win_rate"`
	ProfitFactor  decimal.Decimal `json:"profit_factor"`
	SharpeRatio   decimal.Decimal `json:"sharpe_ratio"`
	SortinoRatio  decimal.Decimal `json:"sortino_ratio"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	Expectancy    decimal.Decimal `json:"expectancy"`
}
