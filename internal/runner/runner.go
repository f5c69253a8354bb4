package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"github.com/petasbytes/toolloop/internal/executor"
	"github.com/petasbytes/toolloop/internal/metrics"
	"github.com/petasbytes/toolloop/internal/provider"
	"github.com/petasbytes/toolloop/internal/session"
	"github.com/petasbytes/toolloop/internal/telemetry"
	"github.com/petasbytes/toolloop/internal/windowing"
	"github.com/petasbytes/toolloop/memory"
	"github.com/petasbytes/toolloop/tools"
)

const (
	DefaultMaxIterations = 10
	DefaultModelTimeout  = 30 * time.Second

	// IncompleteText is the final text of a run that hit its ceiling.
	IncompleteText = "Task incomplete - max iterations reached"
)

var ErrProtocol = errors.New("protocol error")

// Config tunes the loop. Zero values take the defaults above;
// MaxTranscriptTokens 0 sends the whole transcript.
type Config struct {
	System              string
	MaxIterations       int
	ModelTimeout        time.Duration
	ToolTimeout         time.Duration
	MaxTranscriptTokens int
	Sampling            provider.Sampling
}

// Result is what a caller gets back from Run.
type Result struct {
	SessionID  string
	Outcome    session.State
	FinalText  string
	Iterations int
	Trace      []session.TraceEntry
	Usage      provider.Usage
	Report     metrics.Report
	Transcript *memory.Transcript
}

// Runner is safe for concurrent Run calls; each run owns its own session
// and executor.
type Runner struct {
	model    provider.Model
	registry *tools.Registry
	cfg      Config
	rates    metrics.RateTable
	counter  windowing.TokenCounter
	log      zerolog.Logger
}

type Option func(*Runner)

func WithLogger(l zerolog.Logger) Option { return func(r *Runner) { r.log = l } }

func WithRates(t metrics.RateTable) Option { return func(r *Runner) { r.rates = t } }

func WithCounter(c windowing.TokenCounter) Option { return func(r *Runner) { r.counter = c } }

func New(model provider.Model, reg *tools.Registry, cfg Config, opts ...Option) *Runner {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}
	r := &Runner{
		model:    model,
		registry: reg,
		cfg:      cfg,
		rates:    metrics.DefaultRates(),
		counter:  windowing.HeuristicCounter{},
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry exposes the tools presented to the model.
func (r *Runner) Registry() *tools.Registry { return r.registry }

// Run drives one goal to a terminal state. The returned Result is non-nil
// whenever a session was started. The error is non-nil for protocol errors,
// model-call failures and cancellation; an exhausted budget is not an error.
func (r *Runner) Run(ctx context.Context, goal string) (*Result, error) {
	s, err := session.New(goal, r.cfg.System, r.model.Name(), r.cfg.MaxIterations)
	if err != nil {
		return nil, err
	}
	ex := executor.New(r.registry, executor.WithTimeout(r.cfg.ToolTimeout), executor.WithLogger(r.log))
	ctx = telemetry.WithSessionID(ctx, s.ID)
	ctx = provider.WithUsageMeter(ctx, &provider.UsageMeter{})
	log := r.log.With().Str("session", s.ID).Logger()

	fields := telemetry.IDs(ctx)
	fields["model"] = s.Model
	fields["ceiling"] = s.Ceiling
	fields["tools"] = r.registry.Len()
	telemetry.Emit("session_started", fields)
	telemetry.EmitLocalFeatures(ctx, goal)
	log.Info().Int("ceiling", s.Ceiling).Str("model", s.Model).Msg("session started")

	for {
		// Cancellation is honoured only between iterations.
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, s, session.StateCancelled, "", err)
		}
		if !s.Advance() {
			return r.finish(ctx, s, session.StateBudgetExhausted, IncompleteText, nil)
		}
		turnCtx := telemetry.WithTurnID(ctx, fmt.Sprintf("iter-%d", s.Iterations))

		resp, err := r.complete(turnCtx, s)
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(ctx, s, session.StateCancelled, "", ctx.Err())
			}
			return r.finish(ctx, s, session.StateModelError, "", fmt.Errorf("model call (iteration %d): %w", s.Iterations, err))
		}
		s.AddUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		switch resp.Stop {
		case provider.StopToolRequested:
			if len(resp.Calls) == 0 {
				return r.finish(ctx, s, session.StateProtocolError, "", fmt.Errorf("%w: tool requested without any calls", ErrProtocol))
			}
			if err := r.dispatch(turnCtx, s, ex, resp); err != nil {
				return r.finish(ctx, s, session.StateProtocolError, "", err)
			}
		case provider.StopCompleted:
			if err := s.Transcript.AppendModelTurn(memory.ModelTurn(resp.Reasoning, nil, resp.FinalText)); err != nil {
				return r.finish(ctx, s, session.StateProtocolError, "", err)
			}
			return r.finish(ctx, s, session.StateDone, resp.FinalText, nil)
		default:
			return r.finish(ctx, s, session.StateProtocolError, resp.FinalText,
				fmt.Errorf("%w: unrecognized stop reason %q", ErrProtocol, resp.RawStop))
		}
	}
}

// complete sends the (possibly windowed) transcript to the model.
func (r *Runner) complete(ctx context.Context, s *session.Session) (provider.Response, error) {
	turns := s.Transcript.Render()
	if budget := r.cfg.MaxTranscriptTokens; budget > 0 {
		window, stats := windowing.PrepareSendWindow(turns, budget, r.counter)
		fields := telemetry.IDs(ctx)
		fields["budget"] = stats.Budget
		fields["total_estimated"] = stats.Total
		fields["included_groups"] = stats.IncludedGroups
		fields["skipped_groups"] = stats.SkippedGroups
		fields["over_budget_newest"] = stats.OverBudgetNewest
		telemetry.Emit("window_prepared", fields)
		if stats.OverBudgetNewest {
			return provider.Response{}, windowing.ErrNewestOverBudget
		}
		turns = window
	}

	mctx, cancel := context.WithTimeout(ctx, r.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	resp, err := r.model.Complete(mctx, provider.Request{
		System:     s.Transcript.System(),
		Transcript: turns,
		Tools:      r.registry.All(),
		Sampling:   r.cfg.Sampling,
	})

	fields := telemetry.IDs(ctx)
	fields["iteration"] = s.Iterations
	fields["duration_ms"] = time.Since(start).Milliseconds()
	fields["turns_sent"] = len(turns)
	if err != nil {
		fields["error"] = "model_error"
	} else {
		fields["error"] = nil
		fields["stop"] = string(resp.Stop)
		fields["raw_stop"] = resp.RawStop
		fields["input_tokens"] = resp.Usage.InputTokens
		fields["output_tokens"] = resp.Usage.OutputTokens
		fields["calls"] = len(resp.Calls)
	}
	telemetry.Emit("model_call", fields)
	return resp, err
}

// dispatch records the model turn and runs each requested call in order.
func (r *Runner) dispatch(ctx context.Context, s *session.Session, ex *executor.Executor, resp provider.Response) error {
	calls := make([]tools.Call, len(resp.Calls))
	copy(calls, resp.Calls)
	for i := range calls {
		calls[i].Args = tools.NormalizeArgs(calls[i].Args)
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call-%d-%d", s.Iterations, i)
		}
	}
	if err := s.Transcript.AppendModelTurn(memory.ModelTurn(resp.Reasoning, calls, "")); err != nil {
		return err
	}
	if err := s.Transition(session.StateExecutingTool); err != nil {
		return err
	}

	// In-flight tools finish even if the caller cancels; each is still
	// bounded by the executor's timeout.
	toolCtx := context.WithoutCancel(ctx)
	for _, c := range calls {
		start := time.Now()
		res := ex.Execute(toolCtx, c)
		if err := s.Transcript.AppendToolOutcome(memory.OutcomeTurn(c, res)); err != nil {
			return err
		}
		s.Record(session.TraceEntry{
			Iteration:  s.Iterations,
			CallID:     c.ID,
			Name:       c.Name,
			Args:       c.Args,
			Success:    res.Success,
			Kind:       res.Kind,
			ResultSize: res.Size(),
			Duration:   time.Since(start),
		})
	}
	return s.Transition(session.StateAwaitingModel)
}

func (r *Runner) finish(ctx context.Context, s *session.Session, state session.State, final string, err error) (*Result, error) {
	_ = s.Transition(state)
	if m := provider.UsageMeterFrom(ctx); m != nil {
		// tokens spent by tools that call the model themselves
		u := m.Total()
		s.AddUsage(u.InputTokens, u.OutputTokens)
	}
	rep := metrics.Summarize(s, r.rates)
	res := &Result{
		SessionID:  s.ID,
		Outcome:    state,
		FinalText:  final,
		Iterations: s.Iterations,
		Trace:      s.Trace,
		Usage:      provider.Usage{InputTokens: s.InputTokens, OutputTokens: s.OutputTokens},
		Report:     rep,
		Transcript: s.Transcript,
	}

	fields := telemetry.IDs(ctx)
	fields["outcome"] = string(state)
	fields["iterations"] = rep.Iterations
	fields["tool_calls"] = len(rep.Tools)
	fields["input_tokens"] = rep.InputTokens
	fields["output_tokens"] = rep.OutputTokens
	fields["estimated_cost"] = rep.EstimatedCost
	telemetry.Emit("session_finished", fields)

	ev := r.log.Info()
	if err != nil {
		ev = r.log.Error().Err(err)
	}
	ev.Str("session", s.ID).Str("outcome", string(state)).Int("iterations", rep.Iterations).
		Float64("cost_usd", rep.EstimatedCost).Msg("session finished")
	return res, err
}

// BatchResult pairs a goal with its outcome.
type BatchResult struct {
	Goal   string
	Result *Result
	Err    error
}

// RunMany runs independent goals concurrently, at most maxConcurrent at a
// time (0 means GOMAXPROCS). Results keep the order of goals.
func (r *Runner) RunMany(ctx context.Context, goals []string, maxConcurrent int) []BatchResult {
	mapper := iter.Mapper[string, BatchResult]{MaxGoroutines: maxConcurrent}
	return mapper.Map(goals, func(goal *string) BatchResult {
		res, err := r.Run(ctx, *goal)
		return BatchResult{Goal: *goal, Result: res, Err: err}
	})
}
