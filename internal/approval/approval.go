// Package approval implements the human-approval gate (spec §4.9): the
// approval document itself is produced by an external collaborator; the
// engine only reads (and conditionally deletes) it.
package approval

import (
	"time"

	"github.com/atlas-desktop/trading-engine/internal/store"
)

// Decision is the whole-batch verdict.
type Decision struct {
	Pass   bool
	Reason string
}

// Evaluate clears the whole plan batch unless the approval document at
// path exists, parses, is dated today, and is approved=true. A stale
// (wrong-date) document is deleted as a side effect by store.ReadApproval.
func Evaluate(path string, required bool, now time.Time) (Decision, error) {
	if !required {
		return Decision{Pass: true}, nil
	}
	approved, reason, err := store.ReadApproval(path, now)
	if err != nil {
		return Decision{}, err
	}
	if !approved {
		return Decision{Pass: false, Reason: reason}, nil
	}
	return Decision{Pass: true}, nil
}
