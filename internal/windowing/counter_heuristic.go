package windowing

import (
	"unicode/utf8"

	"github.com/petasbytes/toolloop/memory"
)

// TokenCounter estimates input-token cost for turns or groups.
type TokenCounter interface {
	CountTurn(t memory.Turn) int
	CountGroup(g Group, all []memory.Turn) int
}

// HeuristicCounter is the deterministic default estimator: runes of every
// text field plus a fixed overhead per turn and per call.
type HeuristicCounter struct{}

// Changing this requires updating the guard test.
const blockOverhead = 4

func (HeuristicCounter) CountTurn(t memory.Turn) int {
	n := blockOverhead + utf8.RuneCountInString(t.Text) + utf8.RuneCountInString(t.Final)
	for _, c := range t.Calls {
		n += blockOverhead + utf8.RuneCountInString(c.Name) + utf8.RuneCount(c.Args)
	}
	if t.Result != nil {
		n += utf8.RuneCountInString(t.Result.Content())
	}
	return n
}

func (h HeuristicCounter) CountGroup(g Group, all []memory.Turn) int {
	total := 0
	for i := g.Start; i < g.End && i < len(all); i++ {
		total += h.CountTurn(all[i])
	}
	return total
}
