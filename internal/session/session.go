// Package session holds the state of one goal-driven run: the transcript,
// the iteration counter and ceiling, usage counters and the tool trace.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petasbytes/toolloop/memory"
	"github.com/petasbytes/toolloop/tools"
)

// State is a loop state. Done, BudgetExhausted, ProtocolError, Cancelled and
// ModelError are terminal.
type State string

const (
	StateAwaitingModel   State = "awaiting_model"
	StateExecutingTool   State = "executing_tool"
	StateDone            State = "done"
	StateBudgetExhausted State = "budget_exhausted"
	StateProtocolError   State = "protocol_error"
	StateCancelled       State = "cancelled"
	StateModelError      State = "model_error"
)

func (s State) Terminal() bool {
	switch s {
	case StateDone, StateBudgetExhausted, StateProtocolError, StateCancelled, StateModelError:
		return true
	}
	return false
}

var (
	ErrInvalidCeiling = errors.New("iteration ceiling must be positive")
	ErrTerminal       = errors.New("session already finished")
)

// TraceEntry records one tool invocation.
type TraceEntry struct {
	Iteration  int              `json:"iteration"`
	CallID     string           `json:"call_id"`
	Name       string           `json:"name"`
	Args       json.RawMessage  `json:"args"`
	Success    bool             `json:"success"`
	Kind       tools.ResultKind `json:"kind,omitempty"`
	ResultSize int              `json:"result_size"`
	Duration   time.Duration    `json:"duration"`
}

// Session is owned by a single loop goroutine and is not safe for concurrent mutation.
type Session struct {
	ID           string
	Model        string
	Ceiling      int
	Iterations   int
	InputTokens  int64
	OutputTokens int64
	Trace        []TraceEntry
	Transcript   *memory.Transcript
	StartedAt    time.Time

	state State
}

// New seeds a session for goal.
func New(goal, system, model string, ceiling int) (*Session, error) {
	if ceiling <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCeiling, ceiling)
	}
	tr, err := memory.Seed(goal, system)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:         uuid.NewString(),
		Model:      model,
		Ceiling:    ceiling,
		Transcript: tr,
		StartedAt:  time.Now(),
		state:      StateAwaitingModel,
	}, nil
}

func (s *Session) State() State { return s.state }

// Transition moves to the next state. Leaving a terminal state is an error.
func (s *Session) Transition(to State) error {
	if s.state.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminal, s.state, to)
	}
	s.state = to
	return nil
}

// Advance consumes one iteration. It returns false, leaving the counter at
// the ceiling, when the budget is spent.
func (s *Session) Advance() bool {
	if s.Iterations >= s.Ceiling {
		return false
	}
	s.Iterations++
	return true
}

// AddUsage accumulates token counts from one model call.
func (s *Session) AddUsage(in, out int64) {
	s.InputTokens += in
	s.OutputTokens += out
}

// Record appends a trace entry.
func (s *Session) Record(e TraceEntry) {
	s.Trace = append(s.Trace, e)
}
