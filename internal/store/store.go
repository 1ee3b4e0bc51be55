// Package store is the engine's sole persistent state: a sqlite-backed
// relational store for trades/signals/events/shadow_predictions/
// agent_memory, plus atomic JSON document helpers for portfolio.json,
// approval.json, and regime_state.json. Grounded on
// stadam23-Eve-flipper's internal/db/db.go versioned-migration idiom,
// confirmed exactly by original_source's agent_memory.py sqlite schema.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// Store owns the single sqlite handle used by the whole engine. Per spec
// §5, the engine is the only writer; all writes happen from the single
// Workflow invocation goroutine, so no write-side locking is needed
// beyond what database/sql already serializes.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if absent) the sqlite database at path and runs
// every migration statement; each is idempotent (IF NOT EXISTS).
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer per spec §5

	s := &Store{db: db, logger: logger.Named("store")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for package-internal query helpers that live
// alongside their owning component (e.g. AgentMemory's agent_memory
// queries) without growing Store into a god-object.
func (s *Store) DB() *sql.DB { return s.db }

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		pnl TEXT NOT NULL,
		score TEXT NOT NULL,
		strategy_data TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp)`,

	`CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		symbol TEXT NOT NULL,
		score_mom TEXT NOT NULL,
		score_mean TEXT NOT NULL,
		score_break TEXT NOT NULL,
		score_news TEXT NOT NULL,
		weight_mom TEXT NOT NULL,
		weight_mean TEXT NOT NULL,
		weight_break TEXT NOT NULL,
		weight_news TEXT NOT NULL,
		final_score TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals(symbol, timestamp)`,

	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,

	`CREATE TABLE IF NOT EXISTS shadow_predictions (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		symbol TEXT NOT NULL,
		kalman_signal TEXT NOT NULL,
		kalman_level TEXT NOT NULL,
		kalman_trend TEXT NOT NULL,
		kalman_uncertainty TEXT NOT NULL,
		existing_signal TEXT NOT NULL,
		hmm_state TEXT NOT NULL,
		hmm_bull_prob TEXT NOT NULL,
		hmm_bear_prob TEXT NOT NULL,
		hmm_transition_prob TEXT NOT NULL,
		hmm_transition_risk TEXT NOT NULL,
		existing_regime TEXT,
		actual_return_1h TEXT,
		actual_return_1d TEXT,
		outcome_filled INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_shadow_symbol_ts ON shadow_predictions(symbol, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_shadow_outcome ON shadow_predictions(outcome_filled)`,

	`CREATE TABLE IF NOT EXISTS agent_memory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		signal_value REAL NOT NULL,
		outcome TEXT NOT NULL,
		pnl REAL NOT NULL,
		regime_spy REAL,
		regime_vix REAL,
		regime_label TEXT,
		confidence REAL,
		memory_influenced INTEGER NOT NULL DEFAULT 0,
		timestamp TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_memory_agent ON agent_memory(agent_name)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_memory_regime ON agent_memory(regime_label)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_memory_timestamp ON agent_memory(timestamp)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	s.logger.Debug("migrations applied", zap.Int("count", len(migrations)))
	return nil
}
