// Package memory implements per-agent AgentMemory: an append-only
// observation log with decay-weighted recall and an auto-disable
// guardrail (spec §4.14). Grounded column-for-column on
// original_source/src/trading_floor/agent_memory.py's sqlite schema and
// semantics.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Config mirrors spec §6's agent_memory configuration section.
type Config struct {
	RollingWindow      int
	MaxAgeDays         int
	MinSamples         int
	MaxAdjustment      decimal.Decimal
	UnderperformThresh decimal.Decimal
	DecayHalflifeDays  decimal.Decimal
	RegimeMatching     bool
}

// AgentMemory is one named agent's observation log, backed by the
// engine-wide sqlite handle's agent_memory table.
type AgentMemory struct {
	db       *sql.DB
	agent    string
	cfg      Config
	disabled bool
}

// New constructs an AgentMemory bound to agentName, sharing db with the
// rest of the engine's relational store.
func New(db *sql.DB, agentName string, cfg Config) *AgentMemory {
	return &AgentMemory{db: db, agent: agentName, cfg: cfg}
}

// Disabled reports whether this run has already flipped the in-process
// auto-disable flag (spec: "workflow-local", never persisted).
func (m *AgentMemory) Disabled() bool { return m.disabled }

// Record inserts one observation then prunes stale/excess rows for this
// agent (age cutoff, then rolling-window cap), matching
// original_source's record()+prune() sequence.
func (m *AgentMemory) Record(ctx context.Context, obs types.AgentMemoryObservation, regimeSPY, regimeVIX decimal.Decimal) error {
	now := time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `INSERT INTO agent_memory
		(agent_name, symbol, signal_type, signal_value, outcome, pnl, regime_spy, regime_vix,
		 regime_label, confidence, memory_influenced, timestamp, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.agent, obs.Symbol, obs.SignalType, obs.SignalValue.InexactFloat64(), string(obs.Outcome),
		obs.PnL.InexactFloat64(), regimeSPY.InexactFloat64(), regimeVIX.InexactFloat64(),
		obs.RegimeLabel, obs.Confidence.InexactFloat64(), boolToInt(obs.MemoryInfluenced),
		obs.Timestamp.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return m.prune(ctx)
}

func (m *AgentMemory) prune(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.MaxAgeDays).Format(time.RFC3339)
	if _, err := m.db.ExecContext(ctx, `DELETE FROM agent_memory WHERE agent_name = ? AND timestamp < ?`, m.agent, cutoff); err != nil {
		return fmt.Errorf("prune by age: %w", err)
	}
	_, err := m.db.ExecContext(ctx, `DELETE FROM agent_memory WHERE agent_name = ? AND id NOT IN (
		SELECT id FROM agent_memory WHERE agent_name = ? ORDER BY id DESC LIMIT ?
	)`, m.agent, m.agent, m.cfg.RollingWindow)
	if err != nil {
		return fmt.Errorf("prune by rolling window: %w", err)
	}
	return nil
}

type weightedObservation struct {
	outcome    types.MemoryOutcome
	pnl        float64
	confidence float64
	memInflu   bool
	weight     float64
}

// recall fetches observations matching the optional symbol/regime
// filters, newest first up to limit, with decay weight 2^(-age/halflife)
// attached to each.
func (m *AgentMemory) recall(ctx context.Context, symbol, regime string, limit int) ([]weightedObservation, error) {
	query := `SELECT outcome, pnl, confidence, memory_influenced, timestamp FROM agent_memory WHERE agent_name = ?`
	args := []any{m.agent}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	if regime != "" && m.cfg.RegimeMatching {
		query += ` AND regime_label = ?`
		args = append(args, regime)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recall query: %w", err)
	}
	defer rows.Close()

	halflife := m.cfg.DecayHalflifeDays.InexactFloat64()
	now := time.Now().UTC()

	var out []weightedObservation
	for rows.Next() {
		var outcome, ts string
		var pnl, confidence float64
		var memInfluInt int
		if err := rows.Scan(&outcome, &pnl, &confidence, &memInfluInt, &ts); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		ageDays := now.Sub(parsed).Hours() / 24
		weight := math.Pow(2, -ageDays/halflife)
		out = append(out, weightedObservation{
			outcome:    types.MemoryOutcome(outcome),
			pnl:        pnl,
			confidence: confidence,
			memInflu:   memInfluInt == 1,
			weight:     weight,
		})
	}
	return out, rows.Err()
}

// SignalAccuracy is the decay-weighted win rate + average PnL over an
// agent's resolved observations, as returned by GetSignalAccuracy.
type SignalAccuracy struct {
	WinRate decimal.Decimal
	AvgPnL  decimal.Decimal
}

// GetSignalAccuracy returns the decay-weighted accuracy over the agent's
// newest limit observations, optionally scoped to regime, or false if
// fewer than min_samples win/loss entries exist. Observations are not
// filtered by signal type: every signal type of the agent is counted.
func (m *AgentMemory) GetSignalAccuracy(ctx context.Context, regime string, limit int) (SignalAccuracy, bool, error) {
	obs, err := m.recall(ctx, "", regime, limit)
	if err != nil {
		return SignalAccuracy{}, false, err
	}
	wins, losses := 0, 0
	weightedWins, totalWeight, weightedPnL := 0.0, 0.0, 0.0
	for _, o := range obs {
		switch o.outcome {
		case types.MemoryOutcomeWin:
			wins++
			weightedWins += o.weight
		case types.MemoryOutcomeLoss:
			losses++
		default:
			continue
		}
		totalWeight += o.weight
		weightedPnL += o.pnl * o.weight
	}
	if wins+losses < m.cfg.MinSamples {
		return SignalAccuracy{}, false, nil
	}
	if totalWeight == 0 {
		return SignalAccuracy{}, false, nil
	}
	return SignalAccuracy{
		WinRate: decimal.NewFromFloat(weightedWins / totalWeight),
		AvgPnL:  decimal.NewFromFloat(weightedPnL / totalWeight),
	}, true, nil
}

// SuggestWeightAdjustment is the central consultation call spec §4.6
// invokes from PM. It returns Insufficient when too little data exists;
// Disable (and flips the in-process disabled flag) when the
// memory-influenced subset underperforms the default subset by more
// than underperform_threshold; otherwise a bounded multiplicative
// Adjust, matching original_source's suggest_weight_adjustment exactly.
func (m *AgentMemory) SuggestWeightAdjustment(ctx context.Context, currentWeight decimal.Decimal, regime string) (types.MemoryDecision, error) {
	obs, err := m.recall(ctx, "", regime, 0)
	if err != nil {
		return types.MemoryDecision{}, err
	}

	var memInflu, defaultObs []weightedObservation
	for _, o := range obs {
		if o.memInflu {
			memInflu = append(memInflu, o)
		} else {
			defaultObs = append(defaultObs, o)
		}
	}

	if len(memInflu) >= m.cfg.MinSamples && len(defaultObs) >= m.cfg.MinSamples {
		memAvg := avgPnL(memInflu)
		defAvg := avgPnL(defaultObs)
		if defAvg > 0 {
			underperform := (defAvg - memAvg) / math.Abs(defAvg)
			if underperform > m.cfg.UnderperformThresh.InexactFloat64() {
				m.disabled = true
				return types.MemoryDecision{Action: types.MemoryDecisionDisable}, nil
			}
		}
	}

	wins, losses := 0, 0
	for _, o := range obs {
		switch o.outcome {
		case types.MemoryOutcomeWin:
			wins++
		case types.MemoryOutcomeLoss:
			losses++
		}
	}
	if wins+losses < m.cfg.MinSamples {
		return types.MemoryDecision{Action: types.MemoryDecisionInsufficient}, nil
	}

	winRate := float64(wins) / float64(wins+losses)
	adjustment := (winRate - 0.5) * 2
	maxAdj := m.cfg.MaxAdjustment.InexactFloat64()
	if adjustment > maxAdj {
		adjustment = maxAdj
	}
	if adjustment < -maxAdj {
		adjustment = -maxAdj
	}

	newWeight := currentWeight.Mul(decimal.NewFromFloat(1 + adjustment))
	floor := decimal.NewFromFloat(0.01)
	if newWeight.LessThan(floor) {
		newWeight = floor
	}

	return types.MemoryDecision{
		Action:     types.MemoryDecisionAdjust,
		NewWeight:  newWeight,
		Adjustment: decimal.NewFromFloat(adjustment),
	}, nil
}

func avgPnL(obs []weightedObservation) float64 {
	if len(obs) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range obs {
		sum += o.pnl
	}
	return sum / float64(len(obs))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
