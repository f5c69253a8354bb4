// Package executor runs tool calls inside a failure boundary and normalizes
// every outcome into a tools.Result.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/petasbytes/toolloop/internal/telemetry"
	"github.com/petasbytes/toolloop/tools"
)

const DefaultTimeout = 30 * time.Second

// Lookup is the registry surface the executor needs.
type Lookup interface {
	Tool(name string) (tools.Tool, error)
}

// Executor is scoped to one session: its idempotency ledger must not be
// shared between runs.
type Executor struct {
	tools   Lookup
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	ledger map[string]time.Time // idempotency key -> first execution
}

type Option func(*Executor)

// WithTimeout bounds each tool call. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

func New(reg Lookup, opts ...Option) *Executor {
	e := &Executor{
		tools:   reg,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
		ledger:  make(map[string]time.Time),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute never returns an error: every failure is a Result.
func (e *Executor) Execute(ctx context.Context, call tools.Call) (res tools.Result) {
	start := time.Now()
	defer func() {
		e.emit(ctx, call, res, time.Since(start))
	}()

	tool, err := e.tools.Tool(call.Name)
	if err != nil {
		return tools.Fail(tools.KindUnknownTool, "Unknown tool: "+call.Name)
	}

	args, err := prepareArgs(tool.Descriptor, call.Args)
	if err != nil {
		return tools.Fail(tools.KindArgumentValidation, fmt.Sprintf("invalid arguments for %s: %v", call.Name, err))
	}

	var key string
	if tool.SideEffecting {
		key = idempotencyKey(call.Name, args)
		if first, seen := e.seen(key); seen {
			return tools.Fail(tools.KindDuplicateCall, fmt.Sprintf(
				"%s already executed with identical arguments at %s; not repeated",
				call.Name, first.UTC().Format(time.RFC3339)))
		}
	}

	res = e.invoke(ctx, tool, args)
	if key != "" && res.Success {
		e.remember(key, start)
	}
	return res
}

type invocation struct {
	payload any
	err     error
}

// invoke runs the tool on its own goroutine so a tool that ignores ctx still
// yields a failure at the deadline. Such a tool keeps running in the
// background and its late result is discarded.
func (e *Executor) invoke(ctx context.Context, tool tools.Tool, args json.RawMessage) tools.Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error().Str("tool", tool.Name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("tool panicked")
				done <- invocation{err: fmt.Errorf("%s panicked: %v", tool.Name, r)}
			}
		}()
		payload, err := tool.Func(ctx, args)
		done <- invocation{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return tools.Fail(tools.KindToolExecution, fmt.Sprintf("%s timed out after %s: %v", tool.Name, e.timeout, out.err))
			}
			return tools.Fail(tools.KindToolExecution, out.err.Error())
		}
		return tools.OK(out.payload)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return tools.Fail(tools.KindToolExecution, fmt.Sprintf("%s timed out after %s", tool.Name, e.timeout))
		}
		return tools.Fail(tools.KindToolExecution, fmt.Sprintf("%s cancelled: %v", tool.Name, ctx.Err()))
	}
}

func (e *Executor) seen(key string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.ledger[key]
	return t, ok
}

func (e *Executor) remember(key string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger[key] = at
}

// prepareArgs validates args against d and fills defaults for absent
// optional parameters. The returned JSON is canonical (sorted keys).
func prepareArgs(d tools.Descriptor, raw json.RawMessage) (json.RawMessage, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	for name, p := range d.Params {
		if _, ok := args[name]; !ok && p.Default != nil {
			args[name] = p.Default
		}
	}
	canonical, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(d.JSONSchema()),
		gojsonschema.NewBytesLoader(canonical),
	)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}
	return canonical, nil
}

func idempotencyKey(name string, canonicalArgs json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(canonicalArgs)
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Executor) emit(ctx context.Context, call tools.Call, res tools.Result, d time.Duration) {
	fields := telemetry.IDs(ctx)
	fields["tool_name"] = call.Name
	fields["duration_ms"] = d.Milliseconds()
	fields["input_size"] = len(call.Args)
	fields["output_size"] = res.Size()
	// The error class only; raw messages may carry payload data.
	if res.Success {
		fields["error"] = nil
	} else {
		fields["error"] = string(res.Kind)
	}
	telemetry.Emit("tool_exec", fields)

	ev := e.log.Debug()
	if !res.Success {
		ev = e.log.Warn().Str("kind", string(res.Kind)).Str("error", res.Error)
	}
	ev.Str("tool", call.Name).Dur("took", d).Int("result_size", res.Size()).Msg("tool executed")
}
