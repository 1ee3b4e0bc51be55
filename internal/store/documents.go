package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// WriteJSONAtomic writes v to path via write-to-temp-then-rename, the
// single-producer/single-consumer idiom spec §9 requires for all three
// shared JSON documents. Grounded on the teacher's internal/data/store.go
// JSON persistence, generalized with the temp-then-rename step that
// original_source's portfolio.py save() achieves via its own atomic
// replace.
func WriteJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// WritePortfolioSnapshot persists portfolio.json after a successful
// execution batch. The engine is the document's sole writer.
func WritePortfolioSnapshot(path string, state *types.PortfolioState) error {
	return WriteJSONAtomic(path, state)
}

// ReadPortfolioSnapshot loads a prior portfolio.json written by
// WritePortfolioSnapshot. Returns (nil, nil) if the document does not
// yet exist, so the first invocation on a fresh engine.db starts flat.
func ReadPortfolioSnapshot(path string) (*types.PortfolioState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read portfolio snapshot %s: %w", path, err)
	}
	var state types.PortfolioState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse portfolio snapshot %s: %w", path, err)
	}
	return &state, nil
}

// ApprovalDocument is the externally-produced approval.json shape.
type ApprovalDocument struct {
	Date     string `json:"date"`
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

// ReadApproval loads approval.json. Per spec §4.9, a missing, unparseable,
// or stale (date != today) document means denial, and stale documents are
// deleted as a side effect (grounded on original_source's approval
// consumer pattern of treating the file as externally-produced and
// self-expiring).
func ReadApproval(path string, today time.Time) (approved bool, reason string, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return false, "approval file missing", nil
		}
		return false, "", fmt.Errorf("read approval %s: %w", path, readErr)
	}
	var doc ApprovalDocument
	if unmarshalErr := json.Unmarshal(data, &doc); unmarshalErr != nil {
		return false, "approval file unparseable", nil
	}
	todayStr := today.Format("2006-01-02")
	if doc.Date != todayStr {
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return false, "", fmt.Errorf("remove stale approval %s: %w", path, removeErr)
		}
		return false, "approval expired (stale file removed)", nil
	}
	if !doc.Approved {
		return false, "approval denied", nil
	}
	return true, "", nil
}

// ReadRegimeState loads the read-only regime_state.json side-document
// produced by the external regime monitor. Returns (nil, nil) if the
// document does not yet exist — callers fall back to a live HMM predict.
func ReadRegimeState(path string) (*types.RegimeState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read regime state %s: %w", path, err)
	}
	var state types.RegimeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse regime state %s: %w", path, err)
	}
	return &state, nil
}
