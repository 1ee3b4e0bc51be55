package approval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeApprovalDoc(t *testing.T, path string, date string, approved bool) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"date": date, "approved": approved, "notes": ""})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestEvaluateClearsPlanOnStaleDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approval.json")
	writeApprovalDoc(t, path, "2020-01-01", true)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	dec, err := Evaluate(path, true, now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Pass {
		t.Error("expected stale approval document to fail")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("expected stale approval document to be removed")
	}
}

func TestEvaluatePassesOnTodayApproved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approval.json")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	writeApprovalDoc(t, path, now.Format("2006-01-02"), true)

	dec, err := Evaluate(path, true, now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Pass {
		t.Errorf("expected same-day approved document to pass, got reason %q", dec.Reason)
	}
}

func TestEvaluateSkipsWhenNotRequired(t *testing.T) {
	dec, err := Evaluate(filepath.Join(t.TempDir(), "missing.json"), false, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !dec.Pass {
		t.Error("expected pass when approval is not required, regardless of file state")
	}
}

func TestEvaluateFailsWhenMissing(t *testing.T) {
	dec, err := Evaluate(filepath.Join(t.TempDir(), "missing.json"), true, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Pass {
		t.Error("expected missing approval document to fail")
	}
}
