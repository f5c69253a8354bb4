package metrics

import (
	"encoding/json"
	"strings"

	"github.com/petasbytes/toolloop/internal/session"
)

// Rate is a price in USD per million tokens.
type Rate struct {
	Input  float64 `mapstructure:"input" json:"input"`
	Output float64 `mapstructure:"output" json:"output"`
}

// RateTable maps a model name (or name prefix) to its rate.
type RateTable map[string]Rate

// DefaultRate applies to models missing from the table.
var DefaultRate = Rate{Input: 3, Output: 15}

// DefaultRates lists published list prices.
func DefaultRates() RateTable {
	return RateTable{
		"claude-3-haiku":    {Input: 0.25, Output: 1.25},
		"claude-3-5-haiku":  {Input: 0.80, Output: 4},
		"claude-3-5-sonnet": {Input: 3, Output: 15},
		"claude-3-7-sonnet": {Input: 3, Output: 15},
		"claude-sonnet-4":   {Input: 3, Output: 15},
		"gpt-4o":            {Input: 2.50, Output: 10},
		"gpt-4o-mini":       {Input: 0.15, Output: 0.60},
	}
}

// For returns the rate for model: exact match first, then the longest
// matching prefix (dated model IDs), then DefaultRate.
func (t RateTable) For(model string) Rate {
	if r, ok := t[model]; ok {
		return r
	}
	best, bestLen := DefaultRate, 0
	for name, r := range t {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			best, bestLen = r, len(name)
		}
	}
	return best
}

// Cost is inputTokens*inputRate + outputTokens*outputRate.
func (r Rate) Cost(in, out int64) float64 {
	return float64(in)*r.Input/1e6 + float64(out)*r.Output/1e6
}

// ToolUse is one row of the invocation log.
type ToolUse struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Success    bool            `json:"success"`
	ResultSize int             `json:"result_size"`
}

// Report is a read-only projection of a session.
type Report struct {
	Iterations    int       `json:"iterations"`
	InputTokens   int64     `json:"input_tokens"`
	OutputTokens  int64     `json:"output_tokens"`
	EstimatedCost float64   `json:"estimated_cost"`
	Tools         []ToolUse `json:"tools"`
}

// Summarize derives the report for s.
func Summarize(s *session.Session, rates RateTable) Report {
	rep := Report{
		Iterations:    s.Iterations,
		InputTokens:   s.InputTokens,
		OutputTokens:  s.OutputTokens,
		EstimatedCost: rates.For(s.Model).Cost(s.InputTokens, s.OutputTokens),
		Tools:         make([]ToolUse, 0, len(s.Trace)),
	}
	for _, e := range s.Trace {
		rep.Tools = append(rep.Tools, ToolUse{
			Name:       e.Name,
			Arguments:  e.Args,
			Success:    e.Success,
			ResultSize: e.ResultSize,
		})
	}
	return rep
}
