package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// InsertTrade appends one executed-trade row.
func (s *Store) InsertTrade(ctx context.Context, symbol string, side types.OrderSide, qty, price, pnl, score decimal.Decimal, strategyData any) (string, error) {
	id := uuid.NewString()
	meta, _ := json.Marshal(strategyData)
	_, err := s.db.ExecContext(ctx, `INSERT INTO trades
		(id, timestamp, symbol, side, quantity, price, pnl, score, strategy_data)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		id, time.Now().UTC().Format(time.RFC3339), symbol, string(side),
		qty.String(), price.String(), pnl.String(), score.String(), string(meta))
	if err != nil {
		return "", fmt.Errorf("insert trade: %w", err)
	}
	return id, nil
}

// InsertSignal appends one per-cycle signal row covering all top-N
// symbols regardless of whether they ultimately traded (spec §7).
func (s *Store) InsertSignal(ctx context.Context, symbol string, c types.SignalComponents, w types.SignalWeights, final decimal.Decimal) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO signals
		(id, timestamp, symbol, score_mom, score_mean, score_break, score_news,
		 weight_mom, weight_mean, weight_break, weight_news, final_score)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, time.Now().UTC().Format(time.RFC3339), symbol,
		c.Momentum.String(), c.MeanRev.String(), c.Breakout.String(), c.News.String(),
		w.Momentum.String(), w.MeanRev.String(), w.Breakout.String(), w.News.String(),
		final.String())
	if err != nil {
		return "", fmt.Errorf("insert signal: %w", err)
	}
	return id, nil
}

// LatestSignalScore returns the most recent same-calendar-day composite
// score for symbol, for the persistence gate (spec §4.4). Returns
// (zero, false) if none exists yet today.
func (s *Store) LatestSignalScore(ctx context.Context, symbol string, day time.Time) (decimal.Decimal, bool, error) {
	dayStr := day.Format("2006-01-02")
	row := s.db.QueryRowContext(ctx, `SELECT final_score FROM signals
		WHERE symbol = ? AND substr(timestamp,1,10) = ?
		ORDER BY timestamp DESC LIMIT 1`, symbol, dayStr)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("latest signal score: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse signal score: %w", err)
	}
	return d, true, nil
}

// InsertEvent appends one event row summarizing a gate outcome or cycle
// milestone.
func (s *Store) InsertEvent(ctx context.Context, level, message string, metadata any) error {
	id := uuid.NewString()
	meta, _ := json.Marshal(metadata)
	_, err := s.db.ExecContext(ctx, `INSERT INTO events
		(id, timestamp, level, message, metadata) VALUES (?,?,?,?,?)`,
		id, time.Now().UTC().Format(time.RFC3339), level, message, string(meta))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertShadowPrediction appends one shadow-model record.
func (s *Store) InsertShadowPrediction(ctx context.Context, r types.ShadowRecord) error {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO shadow_predictions
		(id, timestamp, symbol, kalman_signal, kalman_level, kalman_trend, kalman_uncertainty,
		 existing_signal, hmm_state, hmm_bull_prob, hmm_bear_prob, hmm_transition_prob,
		 hmm_transition_risk, existing_regime, actual_return_1h, actual_return_1d, outcome_filled)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, r.Timestamp.UTC().Format(time.RFC3339), r.Symbol,
		r.KalmanSignal.String(), r.KalmanLevel.String(), r.KalmanTrend.String(), r.KalmanUncertainty.String(),
		r.ExistingSignal.String(), r.HMMState, r.HMMBullProb.String(), r.HMMBearProb.String(),
		r.HMMTransProb.String(), r.HMMTransitionRisk.String(), r.ExistingRegime,
		r.ActualReturn1h.String(), r.ActualReturn1d.String(), boolToInt(r.OutcomeFilled))
	if err != nil {
		return fmt.Errorf("insert shadow prediction: %w", err)
	}
	return nil
}

// TodaysTradesForSymbol returns closed trades (pnl != 0) on symbol
// today, newest first — used by Challenger's re-entry check and
// Finance's today's-PnL input. The pnl != 0 filter excludes entry rows
// (logged with pnl=0 at open) so only realized closes count, matching
// challenger.py's `AND pnl != 0` re-entry query.
func (s *Store) TodaysTradesForSymbol(ctx context.Context, symbol string, day time.Time, limit int) ([]TradeSummary, error) {
	dayStr := day.Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx, `SELECT side, pnl, timestamp FROM trades
		WHERE symbol = ? AND substr(timestamp,1,10) = ? AND pnl != 0
		ORDER BY timestamp DESC LIMIT ?`, symbol, dayStr, limit)
	if err != nil {
		return nil, fmt.Errorf("todays trades: %w", err)
	}
	defer rows.Close()
	return scanTradeSummaries(rows)
}

// RecentTradesForSymbol returns the last N closed trades (pnl != 0) for
// symbol regardless of day, newest first — used by Challenger's
// consecutive-losses check. The pnl != 0 filter excludes entry rows,
// matching challenger.py's consecutive-losses query.
func (s *Store) RecentTradesForSymbol(ctx context.Context, symbol string, limit int) ([]TradeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT side, pnl, timestamp FROM trades
		WHERE symbol = ? AND pnl != 0 ORDER BY timestamp DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	defer rows.Close()
	return scanTradeSummaries(rows)
}

// TradeSummary is a lightweight trade projection used by Challenger.
type TradeSummary struct {
	Side      types.OrderSide
	PnL       decimal.Decimal
	Timestamp time.Time
}

func scanTradeSummaries(rows *sql.Rows) ([]TradeSummary, error) {
	var out []TradeSummary
	for rows.Next() {
		var side, ts string
		var pnlRaw string
		if err := rows.Scan(&side, &pnlRaw, &ts); err != nil {
			return nil, fmt.Errorf("scan trade summary: %w", err)
		}
		pnl, err := decimal.NewFromString(pnlRaw)
		if err != nil {
			return nil, fmt.Errorf("parse trade pnl: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse trade timestamp: %w", err)
		}
		out = append(out, TradeSummary{Side: types.OrderSide(side), PnL: pnl, Timestamp: parsed})
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
