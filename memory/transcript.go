package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/petasbytes/toolloop/tools"
)

// Kind tags the Turn variant.
type Kind string

const (
	KindGoal        Kind = "goal"
	KindModel       Kind = "model"
	KindToolOutcome Kind = "tool_outcome"
)

// Turn is one transcript entry. Which fields are meaningful depends on Kind:
//   - goal: Text
//   - model: Text (reasoning, optional), Calls, Final (completion text)
//   - tool_outcome: CallID, ToolName, Result
type Turn struct {
	Kind     Kind          `json:"kind"`
	Text     string        `json:"text,omitempty"`
	Calls    []tools.Call  `json:"calls,omitempty"`
	Final    string        `json:"final,omitempty"`
	CallID   string        `json:"call_id,omitempty"`
	ToolName string        `json:"tool_name,omitempty"`
	Result   *tools.Result `json:"result,omitempty"`
}

// ModelTurn builds a model turn.
func ModelTurn(reasoning string, calls []tools.Call, final string) Turn {
	return Turn{Kind: KindModel, Text: reasoning, Calls: calls, Final: final}
}

// OutcomeTurn builds a tool outcome turn answering call.
func OutcomeTurn(call tools.Call, res tools.Result) Turn {
	return Turn{Kind: KindToolOutcome, CallID: call.ID, ToolName: call.Name, Result: &res}
}

var (
	ErrEmptyGoal = errors.New("goal text is empty")
	ErrWrongKind = errors.New("turn kind not accepted here")
)

// Transcript is safe for concurrent readers; one session appends to it.
type Transcript struct {
	mu     sync.RWMutex
	system string
	turns  []Turn
}

// Seed starts a transcript with exactly one goal turn.
func Seed(goal, system string) (*Transcript, error) {
	if goal == "" {
		return nil, ErrEmptyGoal
	}
	return &Transcript{
		system: system,
		turns:  []Turn{{Kind: KindGoal, Text: goal}},
	}, nil
}

// AppendModelTurn appends a model turn.
func (t *Transcript) AppendModelTurn(turn Turn) error {
	if turn.Kind != KindModel {
		return fmt.Errorf("%w: append model turn got %q", ErrWrongKind, turn.Kind)
	}
	t.append(turn)
	return nil
}

// AppendToolOutcome appends a tool outcome turn. The result must be set.
func (t *Transcript) AppendToolOutcome(turn Turn) error {
	if turn.Kind != KindToolOutcome || turn.Result == nil {
		return fmt.Errorf("%w: append tool outcome got %q", ErrWrongKind, turn.Kind)
	}
	t.append(turn)
	return nil
}

func (t *Transcript) append(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
}

// Render returns the ordered turns. The slice is a copy; callers may not
// affect the transcript through it.
func (t *Transcript) Render() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Goal returns the seeding goal text.
func (t *Transcript) Goal() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.turns[0].Text
}

func (t *Transcript) System() string { return t.system }

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

type export struct {
	System string `json:"system"`
	Turns  []Turn `json:"turns"`
}

// Save writes the transcript as indented JSON.
func (t *Transcript) Save(path string) error {
	b, err := json.MarshalIndent(export{System: t.System(), Turns: t.Render()}, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Load reads an export written by Save. A missing file returns nil, nil.
func Load(path string) (*Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var e export
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	if len(e.Turns) == 0 || e.Turns[0].Kind != KindGoal {
		return nil, fmt.Errorf("transcript %s: first turn must be the goal", path)
	}
	return &Transcript{system: e.System, turns: e.Turns}, nil
}
