package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/petasbytes/toolloop/memory"
	"github.com/petasbytes/toolloop/tools"
)

const DefaultAnthropicModel = "claude-3-haiku-20240307"

// Anthropic adapts the Messages API. It is safe for concurrent use: each
// Complete builds its own client, since the SDK's services append per-call
// options onto their shared option slice.
type Anthropic struct {
	opts  []option.RequestOption
	model string
}

// NewAnthropic builds an adapter. With no options the SDK reads
// ANTHROPIC_API_KEY from the environment.
func NewAnthropic(model string, opts ...option.RequestOption) *Anthropic {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{opts: slices.Clip(slices.Clone(opts)), model: model}
}

func (a *Anthropic) Name() string { return a.model }

func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.Sampling.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		Messages:    toAnthropicMessages(req.Transcript),
		Temperature: anthropic.Float(req.Sampling.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	client := anthropic.NewClient(a.opts...)
	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic: %w", err)
	}
	return fromAnthropicMessage(msg), nil
}

func toAnthropicTools(ds []tools.Descriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(ds))
	for _, d := range ds {
		schema := d.JSONSchema()
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   d.RequiredParams(),
			},
		}})
	}
	return out
}

// toAnthropicMessages maps turns to alternating messages. Consecutive tool
// outcomes collapse into one user message of tool_result blocks.
func toAnthropicMessages(turns []memory.Turn) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}
	for _, t := range turns {
		switch t.Kind {
		case memory.KindGoal:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		case memory.KindModel:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if text := strings.TrimSpace(t.Text + t.Final); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text+t.Final))
			}
			for _, c := range t.Calls {
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ID, objectArgs(c.Args), c.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case memory.KindToolOutcome:
			res := t.Result
			if res == nil {
				continue
			}
			results = append(results, anthropic.NewToolResultBlock(t.CallID, res.Content(), !res.Success))
		}
	}
	flush()
	return out
}

func fromAnthropicMessage(msg *anthropic.Message) Response {
	resp := Response{
		RawStop: string(msg.StopReason),
		Usage:   Usage{InputTokens: msg.Usage.InputTokens, OutputTokens: msg.Usage.OutputTokens},
	}
	var text []string
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			if v.Text != "" {
				text = append(text, v.Text)
			}
		case anthropic.ToolUseBlock:
			resp.Calls = append(resp.Calls, tools.Call{
				ID:   v.ID,
				Name: v.Name,
				Args: tools.NormalizeArgs(json.RawMessage(v.JSON.Input.Raw())),
			})
		}
	}
	joined := strings.Join(text, "\n")

	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		resp.Stop = StopToolRequested
		resp.Reasoning = joined
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		resp.Stop = StopCompleted
		resp.FinalText = joined
	default:
		resp.Stop = StopOther
		resp.FinalText = joined
	}
	return resp
}

// objectArgs replays recorded arguments as tool_use input, which the
// Messages API requires to be an object.
func objectArgs(b json.RawMessage) json.RawMessage {
	b = tools.NormalizeArgs(b)
	if !gjson.ParseBytes(b).IsObject() {
		return json.RawMessage(`{}`)
	}
	return b
}
