package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// ParamSpec constrains a single tool parameter.
type ParamSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Items       string   `json:"items,omitempty"` // element type when Type is "array"
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// Descriptor is what the model sees of a tool.
type Descriptor struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Params      map[string]ParamSpec `json:"params"`
	// SideEffecting marks tools whose invocation changes the outside world
	// (sends mail, writes files). The executor runs these at most once per
	// identical argument set within a session.
	SideEffecting bool `json:"side_effecting,omitempty"`
}

// RequiredParams returns the names of required parameters in sorted order.
func (d Descriptor) RequiredParams() []string {
	out := make([]string, 0, len(d.Params))
	for name, p := range d.Params {
		if p.Required {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// JSONSchema renders the parameter schema as a JSON Schema object.
func (d Descriptor) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Params))
	for name, p := range d.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == "array" && p.Items != "" {
			prop["items"] = map[string]any{"type": p.Items}
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if req := d.RequiredParams(); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

func (d Descriptor) clone() Descriptor {
	out := d
	if d.Params != nil {
		out.Params = make(map[string]ParamSpec, len(d.Params))
		for k, p := range d.Params {
			if p.Enum != nil {
				p.Enum = append([]any(nil), p.Enum...)
			}
			if p.Minimum != nil {
				v := *p.Minimum
				p.Minimum = &v
			}
			if p.Maximum != nil {
				v := *p.Maximum
				p.Maximum = &v
			}
			out.Params[k] = p
		}
	}
	return out
}

// Func is a tool implementation. The returned payload is marshalled to JSON.
type Func func(ctx context.Context, args json.RawMessage) (any, error)

// Tool binds a descriptor to its implementation.
type Tool struct {
	Descriptor
	Func Func
}

// Call is a tool invocation request produced by the model.
type Call struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// NormalizeArgs makes model-supplied arguments safe to store and encode.
// Empty or null input becomes {}. Input that is not valid JSON is kept as a
// JSON string, which argument validation then rejects.
func NormalizeArgs(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`)
	}
	if !gjson.Valid(trimmed) {
		b, _ := json.Marshal(string(raw))
		return b
	}
	return raw
}

// ResultKind classifies a failed Result.
type ResultKind string

const (
	KindNone               ResultKind = ""
	KindArgumentValidation ResultKind = "argument_validation"
	KindToolExecution      ResultKind = "tool_execution"
	KindUnknownTool        ResultKind = "unknown_tool"
	KindDuplicateCall      ResultKind = "duplicate_call"
)

// Result is the uniform envelope every execution produces.
type Result struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Kind    ResultKind      `json:"kind,omitempty"`
}

// OK wraps a payload into a successful Result.
func OK(payload any) Result {
	if raw, ok := payload.(json.RawMessage); ok {
		return Result{Success: true, Payload: raw}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Fail(KindToolExecution, "marshal payload: "+err.Error())
	}
	return Result{Success: true, Payload: b}
}

// Fail builds a failed Result.
func Fail(kind ResultKind, msg string) Result {
	if msg == "" {
		msg = "tool failed"
	}
	return Result{Success: false, Error: msg, Kind: kind}
}

// Size is the number of bytes handed back to the model.
func (r Result) Size() int {
	if r.Success {
		return len(r.Payload)
	}
	return len(r.Error)
}

// Content renders the envelope as the compact JSON string sent to the model.
func (r Result) Content() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unrenderable result"}`
	}
	return string(b)
}
