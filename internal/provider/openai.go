package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/petasbytes/toolloop/memory"
	"github.com/petasbytes/toolloop/tools"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// OpenAI adapts any OpenAI-compatible chat/completions endpoint.
type OpenAI struct {
	apiKey     string
	apiBase    string
	model      string
	httpClient *http.Client
}

// NewOpenAI builds an adapter. An empty apiBase means api.openai.com; a nil
// client gets a 120s timeout.
func NewOpenAI(apiKey, apiBase, model string, hc *http.Client) *OpenAI {
	if apiBase == "" {
		apiBase = defaultOpenAIBase
	}
	if hc == nil {
		hc = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAI{
		apiKey:     apiKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		model:      model,
		httpClient: hc,
	}
}

func (p *OpenAI) Name() string { return p.model }

func (p *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	body := map[string]any{
		"model":       p.model,
		"messages":    toOpenAIMessages(req.System, req.Transcript),
		"temperature": req.Sampling.Temperature,
	}
	if req.Sampling.MaxTokens > 0 {
		body["max_tokens"] = req.Sampling.MaxTokens
	}
	if len(req.Tools) > 0 {
		fns := make([]map[string]any, 0, len(req.Tools))
		for _, d := range req.Tools {
			fns = append(fns, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        d.Name,
					"description": d.Description,
					"parameters":  d.JSONSchema(),
				},
			})
		}
		body["tools"] = fns
		body["tool_choice"] = "auto"
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return Response{}, fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, msg)
	}
	return parseOpenAIResponse(raw)
}

func toOpenAIMessages(system string, turns []memory.Turn) []map[string]any {
	out := make([]map[string]any, 0, len(turns)+1)
	if system != "" {
		out = append(out, map[string]any{"role": "system", "content": system})
	}
	for _, t := range turns {
		switch t.Kind {
		case memory.KindGoal:
			out = append(out, map[string]any{"role": "user", "content": t.Text})
		case memory.KindModel:
			m := map[string]any{"role": "assistant", "content": t.Text + t.Final}
			if len(t.Calls) > 0 {
				calls := make([]map[string]any, 0, len(t.Calls))
				for _, c := range t.Calls {
					calls = append(calls, map[string]any{
						"id":   c.ID,
						"type": "function",
						"function": map[string]any{
							"name":      c.Name,
							"arguments": string(tools.NormalizeArgs(c.Args)),
						},
					})
				}
				m["tool_calls"] = calls
			}
			out = append(out, m)
		case memory.KindToolOutcome:
			if t.Result == nil {
				continue
			}
			out = append(out, map[string]any{
				"role":         "tool",
				"tool_call_id": t.CallID,
				"content":      t.Result.Content(),
			})
		}
	}
	return out
}

func parseOpenAIResponse(raw []byte) (Response, error) {
	if !gjson.ValidBytes(raw) {
		return Response{}, fmt.Errorf("openai: invalid JSON response")
	}
	choice := gjson.GetBytes(raw, "choices.0")
	if !choice.Exists() {
		return Response{}, fmt.Errorf("openai: response has no choices")
	}
	resp := Response{
		RawStop: choice.Get("finish_reason").String(),
		Usage: Usage{
			InputTokens:  gjson.GetBytes(raw, "usage.prompt_tokens").Int(),
			OutputTokens: gjson.GetBytes(raw, "usage.completion_tokens").Int(),
		},
	}
	text := choice.Get("message.content").String()
	choice.Get("message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		resp.Calls = append(resp.Calls, tools.Call{
			ID:   tc.Get("id").String(),
			Name: tc.Get("function.name").String(),
			Args: tools.NormalizeArgs(json.RawMessage(tc.Get("function.arguments").String())),
		})
		return true
	})

	switch resp.RawStop {
	case "tool_calls", "function_call":
		resp.Stop = StopToolRequested
		resp.Reasoning = text
	case "stop":
		resp.Stop = StopCompleted
		resp.FinalText = text
	default:
		resp.Stop = StopOther
		resp.FinalText = text
	}
	return resp, nil
}
