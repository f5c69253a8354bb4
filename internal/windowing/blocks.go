package windowing

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/petasbytes/toolloop/memory"
)

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
	GroupPinned
)

// Group describes a contiguous span of turns [Start, End).
type Group struct {
	Kind  GroupKind
	Start int // inclusive
	End   int // exclusive
}

// GroupTurns splits a transcript into atomic units.
// Invariants:
//   - The goal turn at index 0 is its own pinned group.
//   - A pair is a model turn with calls followed by outcome turns that answer
//     every call ID and nothing else.
//   - Anything else is a singleton.
func GroupTurns(turns []memory.Turn) []Group {
	groups := make([]Group, 0, len(turns))
	i := 0
	if len(turns) > 0 && turns[0].Kind == memory.KindGoal {
		groups = append(groups, Group{Kind: GroupPinned, Start: 0, End: 1})
		i = 1
	}
	for i < len(turns) {
		if end, ok := pairEnd(turns, i); ok {
			groups = append(groups, Group{Kind: GroupPair, Start: i, End: end})
			i = end
			continue
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

// pairEnd reports the exclusive end of the pair starting at i, if any.
func pairEnd(turns []memory.Turn, i int) (int, bool) {
	t := turns[i]
	if t.Kind != memory.KindModel || len(t.Calls) == 0 {
		return 0, false
	}
	want := make(map[string]struct{}, len(t.Calls))
	for _, c := range t.Calls {
		want[c.ID] = struct{}{}
	}
	end := i + 1
	for end < len(turns) && turns[end].Kind == memory.KindToolOutcome && len(want) > 0 {
		if _, ok := want[turns[end].CallID]; !ok {
			vlog.Debug().Int("idx", i).Str("reason", "extra_result").Msg("exclude pair")
			return 0, false
		}
		delete(want, turns[end].CallID)
		end++
	}
	if len(want) > 0 {
		vlog.Debug().Int("idx", i).Str("reason", "missing_results").Msg("exclude pair")
		return 0, false
	}
	return end, true
}

// verbose logging when AGT_VERBOSE_WINDOW_LOGS=1
var vlog = func() zerolog.Logger {
	if os.Getenv("AGT_VERBOSE_WINDOW_LOGS") == "1" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Str("component", "windowing").Logger()
	}
	return zerolog.Nop()
}()
