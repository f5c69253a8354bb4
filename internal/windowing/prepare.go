package windowing

import (
	"errors"

	"github.com/petasbytes/toolloop/memory"
)

// ErrNewestOverBudget means the goal plus the newest group cannot fit.
var ErrNewestOverBudget = errors.New("windowing: newest group exceeds transcript budget")

// Stats summarizes the result of window preparation.
type Stats struct {
	Total            int // estimated tokens of included groups
	Budget           int
	IncludedGroups   int // includes the pinned goal
	SkippedGroups    int
	OverBudgetNewest bool
}

// PrepareSendWindow returns the turns to send: the pinned goal followed by the
// newest whole groups that fit in budget, oldest to newest.
//
// If the goal and the newest group together exceed budget, or budget <= 0,
// the window is empty and OverBudgetNewest is set.
func PrepareSendWindow(turns []memory.Turn, budget int, c TokenCounter) ([]memory.Turn, Stats) {
	if len(turns) == 0 {
		return nil, Stats{Budget: budget}
	}
	groups := GroupTurns(turns)
	over := Stats{Budget: budget, SkippedGroups: len(groups), OverBudgetNewest: true}
	if budget <= 0 {
		return nil, over
	}

	total, included := 0, 0
	var pinned []memory.Turn
	rest := groups
	if groups[0].Kind == GroupPinned {
		total = c.CountGroup(groups[0], turns)
		if total > budget {
			vlog.Debug().Int("budget", budget).Int("cost", total).Msg("pinned goal over budget")
			return nil, over
		}
		pinned = turns[:groups[0].End]
		included = 1
		rest = groups[1:]
	}

	start := len(turns)
	for gi := len(rest) - 1; gi >= 0; gi-- {
		cost := c.CountGroup(rest[gi], turns)
		if total+cost > budget {
			if gi == len(rest)-1 {
				vlog.Debug().Int("budget", budget).Int("cost", cost).Msg("newest group over budget")
				return nil, over
			}
			break
		}
		total += cost
		included++
		start = rest[gi].Start
	}

	window := make([]memory.Turn, 0, len(pinned)+len(turns)-start)
	window = append(window, pinned...)
	window = append(window, turns[start:]...)
	return window, Stats{
		Total:          total,
		Budget:         budget,
		IncludedGroups: included,
		SkippedGroups:  len(groups) - included,
	}
}
