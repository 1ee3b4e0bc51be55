// Package compliance implements the universe-whitelist gate (spec §4.8).
package compliance

import "github.com/atlas-desktop/trading-engine/pkg/types"

// Decision is the whole-batch verdict: any plan whose symbol is outside
// the configured universe rejects the entire batch.
type Decision struct {
	Pass   bool
	Reason string
}

// Evaluate rejects the whole plan batch if any symbol falls outside the
// configured universe whitelist.
func Evaluate(plans []types.Plan, universe []string) Decision {
	allowed := make(map[string]bool, len(universe))
	for _, s := range universe {
		allowed[s] = true
	}
	for _, p := range plans {
		if !allowed[p.Symbol] {
			return Decision{Pass: false, Reason: "symbol outside configured universe: " + p.Symbol}
		}
	}
	return Decision{Pass: true}
}
