// Package providertest offers a deterministic Model for tests.
package providertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/petasbytes/toolloop/internal/provider"
	"github.com/petasbytes/toolloop/tools"
)

var ErrScriptExhausted = errors.New("providertest: script exhausted")

// Step is one scripted reply. A non-nil Err is returned instead of Response.
type Step struct {
	Response provider.Response
	Err      error
}

// Scripted replays Steps in order. When Repeat is set, the last step is
// replayed forever once the script runs out. Every request is recorded.
type Scripted struct {
	Model  string
	Steps  []Step
	Repeat bool

	mu       sync.Mutex
	requests []provider.Request
}

func (s *Scripted) Name() string {
	if s.Model == "" {
		return "scripted"
	}
	return s.Model
}

func (s *Scripted) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := ctx.Err(); err != nil {
		return provider.Response{}, err
	}
	i := len(s.requests) - 1
	if i >= len(s.Steps) {
		if !s.Repeat || len(s.Steps) == 0 {
			return provider.Response{}, ErrScriptExhausted
		}
		i = len(s.Steps) - 1
	}
	st := s.Steps[i]
	if st.Err != nil {
		return provider.Response{}, st.Err
	}
	return st.Response, nil
}

// Requests returns a copy of every request seen so far.
func (s *Scripted) Requests() []provider.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.Request(nil), s.requests...)
}

// Calls returns the number of Complete invocations.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// ToolCall scripts a tool request; args is marshalled to JSON.
func ToolCall(id, name string, args any) Step {
	b, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("providertest: marshal args: %v", err))
	}
	return Step{Response: provider.Response{
		Stop:  provider.StopToolRequested,
		Calls: []tools.Call{{ID: id, Name: name, Args: b}},
		Usage: provider.Usage{InputTokens: 100, OutputTokens: 20},
	}}
}

// Done scripts a natural completion.
func Done(text string) Step {
	return Step{Response: provider.Response{
		Stop:      provider.StopCompleted,
		FinalText: text,
		Usage:     provider.Usage{InputTokens: 120, OutputTokens: 40},
	}}
}

// Other scripts an unrecognized stop reason.
func Other(raw string) Step {
	return Step{Response: provider.Response{Stop: provider.StopOther, RawStop: raw}}
}
