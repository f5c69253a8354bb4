// Package provider normalizes LLM APIs behind the Model interface.
//
// Adapters translate a memory transcript into their wire shape and map the
// provider's stop reason onto a StopSignal. The loop never sees wire types.
package provider

import (
	"context"
	"errors"

	"github.com/petasbytes/toolloop/memory"
	"github.com/petasbytes/toolloop/tools"
)

// StopSignal is the normalized reason a completion ended.
type StopSignal string

const (
	StopToolRequested StopSignal = "tool_requested"
	StopCompleted     StopSignal = "completed"
	StopOther         StopSignal = "other"
)

// Sampling holds generation settings.
type Sampling struct {
	Temperature float64
	MaxTokens   int64
}

// Request is one completion request.
type Request struct {
	System     string
	Transcript []memory.Turn
	Tools      []tools.Descriptor
	Sampling   Sampling
}

// Usage counts tokens for one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is the normalized completion.
type Response struct {
	Stop      StopSignal
	RawStop   string // provider's own stop reason, for diagnostics
	Reasoning string // text accompanying tool calls
	Calls     []tools.Call
	FinalText string
	Usage     Usage
}

// Model is the external LLM collaborator.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

var ErrUnknownProvider = errors.New("unknown provider")
