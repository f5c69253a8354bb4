package podcast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petasbytes/toolloop/internal/provider"
	"github.com/petasbytes/toolloop/memory"
)

const maxSummaryInput = 4000

var stylePrompts = map[string]string{
	"brief":     "Create a brief 2-3 sentence summary.",
	"detailed":  "Create a detailed summary with 5-7 key bullet points.",
	"technical": "Create an in-depth technical analysis with detailed explanations.",
}

// Summarizer makes one tool-free completion per summary.
type Summarizer struct {
	model    provider.Model
	sampling provider.Sampling
}

func NewSummarizer(m provider.Model, s provider.Sampling) *Summarizer {
	if s.MaxTokens == 0 {
		s.MaxTokens = 800
	}
	return &Summarizer{model: m, sampling: s}
}

type Summary struct {
	Success   bool           `json:"success"`
	EpisodeID string         `json:"episode_id,omitempty"`
	Summary   string         `json:"summary"`
	StyleUsed string         `json:"style_used"`
	Model     string         `json:"model"`
	Usage     provider.Usage `json:"usage"`
}

// Summarize condenses content in the given style. focus narrows the summary
// to specific areas when non-empty.
func (s *Summarizer) Summarize(ctx context.Context, title, content, style string, focus []string) (Summary, error) {
	instr, ok := stylePrompts[style]
	if !ok {
		return Summary{}, fmt.Errorf("unknown summary style %q", style)
	}
	if strings.TrimSpace(content) == "" {
		return Summary{}, errors.New("nothing to summarize: content is empty")
	}
	if r := []rune(content); len(r) > maxSummaryInput {
		content = string(r[:maxSummaryInput])
	}

	var b strings.Builder
	b.WriteString(instr)
	b.WriteString("\n\n")
	if title != "" {
		fmt.Fprintf(&b, "Episode Title: %s\n\n", title)
	}
	fmt.Fprintf(&b, "Episode Content:\n%s\n\n", content)
	if len(focus) > 0 {
		fmt.Fprintf(&b, "Focus on: %s\n\n", strings.Join(focus, ", "))
	}
	b.WriteString("Provide a clear, informative summary.")

	t, err := memory.Seed(b.String(), "")
	if err != nil {
		return Summary{}, err
	}
	resp, err := s.model.Complete(ctx, provider.Request{Transcript: t.Render(), Sampling: s.sampling})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}
	provider.ReportUsage(ctx, resp.Usage)
	if resp.Stop != provider.StopCompleted || strings.TrimSpace(resp.FinalText) == "" {
		return Summary{}, fmt.Errorf("summarize: model stopped with %q and no text", resp.RawStop)
	}
	return Summary{Success: true, Summary: resp.FinalText, StyleUsed: style, Model: s.model.Name(), Usage: resp.Usage}, nil
}
