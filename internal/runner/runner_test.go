package runner_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/toolloop/internal/provider"
	"github.com/petasbytes/toolloop/internal/provider/providertest"
	"github.com/petasbytes/toolloop/internal/runner"
	"github.com/petasbytes/toolloop/internal/session"
	"github.com/petasbytes/toolloop/memory"
	"github.com/petasbytes/toolloop/tools"
)

type episode struct {
	Title string `json:"title"`
}

func fetchEpisodes() tools.Tool {
	return tools.Tool{
		Descriptor: tools.Descriptor{
			Name:        "fetchEpisodes",
			Description: "Fetch episodes published in the last hoursBack hours",
			Params: map[string]tools.ParamSpec{
				"hoursBack": {Type: "integer", Required: true},
			},
		},
		Func: func(_ context.Context, raw json.RawMessage) (any, error) {
			var in struct {
				HoursBack int `json:"hoursBack"`
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, err
			}
			return []episode{{Title: "AI weekly"}, {Title: "Model talk"}}, nil
		},
	}
}

func newRunner(t *testing.T, m provider.Model, ceiling int, extra ...tools.Tool) *runner.Runner {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(fetchEpisodes()))
	for _, tl := range extra {
		require.NoError(t, reg.Register(tl))
	}
	return runner.New(m, reg, runner.Config{System: "strategy", MaxIterations: ceiling})
}

func TestRun_SingleToolThenComplete(t *testing.T) {
	m := &providertest.Scripted{Model: "claude-3-haiku", Steps: []providertest.Step{
		providertest.ToolCall("t1", "fetchEpisodes", map[string]any{"hoursBack": 24}),
		providertest.Done("Here are 2 AI episodes."),
	}}
	res, err := newRunner(t, m, 10).Run(context.Background(), "get AI episodes")
	require.NoError(t, err)

	assert.Equal(t, session.StateDone, res.Outcome)
	assert.Equal(t, 2, res.Iterations)
	assert.NotEmpty(t, res.FinalText)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, "fetchEpisodes", res.Trace[0].Name)
	assert.True(t, res.Trace[0].Success)
	assert.JSONEq(t, `{"hoursBack":24}`, string(res.Trace[0].Args))

	// Usage accumulates across both calls: 100+120 in, 20+40 out.
	assert.Equal(t, int64(220), res.Report.InputTokens)
	assert.Equal(t, int64(60), res.Report.OutputTokens)
	assert.Equal(t, provider.Usage{InputTokens: 220, OutputTokens: 60}, res.Usage)
	assert.InDelta(t, 220*0.25/1e6+60*1.25/1e6, res.Report.EstimatedCost, 1e-12)
	require.Len(t, res.Report.Tools, 1)
	assert.Positive(t, res.Report.Tools[0].ResultSize)

	// The second request saw the tool outcome and the system text.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "strategy", reqs[1].System)
	require.Len(t, reqs[1].Transcript, 3)
	assert.Len(t, reqs[1].Tools, 1)
}

func TestRun_TranscriptLengthIsOnePlusTwoN(t *testing.T) {
	const rounds = 4
	var steps []providertest.Step
	for i := 0; i < rounds; i++ {
		steps = append(steps, providertest.ToolCall("", "fetchEpisodes", map[string]any{"hoursBack": i + 1}))
	}
	steps = append(steps, providertest.Done("done"))

	res, err := newRunner(t, &providertest.Scripted{Steps: steps}, 10).Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, 1+2*rounds+1, res.Transcript.Len())

	turns := res.Transcript.Render()
	assert.Equal(t, memory.KindGoal, turns[0].Kind)
	for i := 0; i < rounds; i++ {
		model, outcome := turns[1+2*i], turns[2+2*i]
		assert.Equal(t, memory.KindModel, model.Kind)
		assert.Equal(t, memory.KindToolOutcome, outcome.Kind)
		// Missing IDs are filled so outcomes can be matched.
		assert.NotEmpty(t, model.Calls[0].ID)
		assert.Equal(t, model.Calls[0].ID, outcome.CallID)
	}
	assert.Equal(t, "done", turns[len(turns)-1].Final)
}

func TestRun_BudgetExhausted(t *testing.T) {
	m := &providertest.Scripted{Repeat: true, Steps: []providertest.Step{
		providertest.ToolCall("t", "fetchEpisodes", map[string]any{"hoursBack": 1}),
	}}
	res, err := newRunner(t, m, 3).Run(context.Background(), "loop forever")
	require.NoError(t, err)

	assert.Equal(t, session.StateBudgetExhausted, res.Outcome)
	assert.Equal(t, runner.IncompleteText, res.FinalText)
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, res.Trace, 3)
	assert.Equal(t, 3, m.Calls())
}

func TestRun_CeilingFiveMeansFiveModelCalls(t *testing.T) {
	m := &providertest.Scripted{Repeat: true, Steps: []providertest.Step{
		providertest.ToolCall("t", "doesNotExist", map[string]any{}),
	}}
	res, err := newRunner(t, m, 5).Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, session.StateBudgetExhausted, res.Outcome)
	assert.Equal(t, 5, m.Calls())
	assert.Equal(t, 5, res.Report.Iterations)
}

func TestRun_UnknownToolContinues(t *testing.T) {
	m := &providertest.Scripted{Steps: []providertest.Step{
		providertest.ToolCall("t1", "doesNotExist", map[string]any{"x": 1}),
		providertest.ToolCall("t2", "fetchEpisodes", map[string]any{"hoursBack": 24}),
		providertest.Done("recovered"),
	}}
	res, err := newRunner(t, m, 10).Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, session.StateDone, res.Outcome)

	outcome := res.Transcript.Render()[2]
	require.Equal(t, memory.KindToolOutcome, outcome.Kind)
	assert.False(t, outcome.Result.Success)
	assert.Contains(t, outcome.Result.Error, "Unknown tool")
	require.Len(t, res.Trace, 2)
	assert.False(t, res.Trace[0].Success)
	assert.Equal(t, tools.KindUnknownTool, res.Trace[0].Kind)
	assert.True(t, res.Trace[1].Success)
}

func TestRun_FailingToolIsContained(t *testing.T) {
	boom := tools.Tool{
		Descriptor: tools.Descriptor{Name: "explode"},
		Func:       func(context.Context, json.RawMessage) (any, error) { panic("kaboom") },
	}
	m := &providertest.Scripted{Steps: []providertest.Step{
		providertest.ToolCall("t1", "explode", map[string]any{}),
		providertest.Done("ok"),
	}}
	res, err := newRunner(t, m, 10, boom).Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, session.StateDone, res.Outcome)
	require.Len(t, res.Trace, 1)
	assert.False(t, res.Trace[0].Success)
	assert.NotEmpty(t, res.Transcript.Render()[2].Result.Error)
}

func TestRun_ParallelCallsEachGetAnOutcome(t *testing.T) {
	step := providertest.Step{Response: provider.Response{
		Stop: provider.StopToolRequested,
		Calls: []tools.Call{
			{ID: "a", Name: "fetchEpisodes", Args: json.RawMessage(`{"hoursBack":1}`)},
			{ID: "b", Name: "fetchEpisodes", Args: json.RawMessage(`{"hoursBack":"x"}`)},
		},
	}}
	m := &providertest.Scripted{Steps: []providertest.Step{step, providertest.Done("ok")}}
	res, err := newRunner(t, m, 10).Run(context.Background(), "goal")
	require.NoError(t, err)

	turns := res.Transcript.Render()
	require.Len(t, turns, 5)
	assert.Equal(t, "a", turns[2].CallID)
	assert.Equal(t, "b", turns[3].CallID)
	assert.Equal(t, tools.KindArgumentValidation, turns[3].Result.Kind)
}

func TestRun_ProtocolErrorIsFatal(t *testing.T) {
	m := &providertest.Scripted{Steps: []providertest.Step{
		providertest.Other("max_tokens"),
		providertest.Done("never reached"),
	}}
	res, err := newRunner(t, m, 10).Run(context.Background(), "goal")
	require.ErrorIs(t, err, runner.ErrProtocol)
	assert.Contains(t, err.Error(), "max_tokens")
	require.NotNil(t, res)
	assert.Equal(t, session.StateProtocolError, res.Outcome)
	assert.Equal(t, 1, m.Calls())
}

func TestRun_ToolRequestedWithoutCallsIsProtocolError(t *testing.T) {
	m := &providertest.Scripted{Steps: []providertest.Step{
		{Response: provider.Response{Stop: provider.StopToolRequested}},
	}}
	res, err := newRunner(t, m, 10).Run(context.Background(), "goal")
	require.ErrorIs(t, err, runner.ErrProtocol)
	assert.Equal(t, session.StateProtocolError, res.Outcome)
}

func TestRun_ModelFailureIsFatal(t *testing.T) {
	upstream := errors.New("503 overloaded")
	m := &providertest.Scripted{Steps: []providertest.Step{{Err: upstream}}}
	res, err := newRunner(t, m, 10).Run(context.Background(), "goal")
	require.ErrorIs(t, err, upstream)
	assert.Equal(t, session.StateModelError, res.Outcome)
	assert.Equal(t, 1, res.Iterations)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &providertest.Scripted{Steps: []providertest.Step{providertest.Done("x")}}
	res, err := newRunner(t, m, 10).Run(ctx, "goal")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, session.StateCancelled, res.Outcome)
	assert.Zero(t, m.Calls())
}

func TestRun_CancelDuringToolLetsToolFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var toolSawCancel atomic.Bool
	slow := tools.Tool{
		Descriptor: tools.Descriptor{Name: "send_email_digest", SideEffecting: true},
		Func: func(tctx context.Context, _ json.RawMessage) (any, error) {
			cancel()
			toolSawCancel.Store(tctx.Err() != nil)
			return "sent", nil
		},
	}
	m := &providertest.Scripted{Steps: []providertest.Step{
		providertest.ToolCall("t1", "send_email_digest", map[string]any{}),
		providertest.Done("unreachable"),
	}}
	res, err := newRunner(t, m, 10, slow).Run(ctx, "goal")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, session.StateCancelled, res.Outcome)
	assert.Equal(t, 1, m.Calls())
	assert.False(t, toolSawCancel.Load())
	require.Len(t, res.Trace, 1)
	assert.True(t, res.Trace[0].Success)
}

func TestRun_DuplicateSideEffectSuppressed(t *testing.T) {
	var sends atomic.Int32
	email := tools.Tool{
		Descriptor: tools.Descriptor{
			Name:          "send_email_digest",
			SideEffecting: true,
			Params:        map[string]tools.ParamSpec{"subject": {Type: "string", Required: true}},
		},
		Func: func(context.Context, json.RawMessage) (any, error) {
			sends.Add(1)
			return "sent", nil
		},
	}
	m := &providertest.Scripted{Steps: []providertest.Step{
		providertest.ToolCall("t1", "send_email_digest", map[string]any{"subject": "Daily"}),
		providertest.ToolCall("t2", "send_email_digest", map[string]any{"subject": "Daily"}),
		providertest.Done("ok"),
	}}
	res, err := newRunner(t, m, 10, email).Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, int32(1), sends.Load())
	require.Len(t, res.Trace, 2)
	assert.Equal(t, tools.KindDuplicateCall, res.Trace[1].Kind)
}

func TestRun_TranscriptWindowKeepsGoal(t *testing.T) {
	var steps []providertest.Step
	for i := 0; i < 6; i++ {
		steps = append(steps, providertest.ToolCall("", "fetchEpisodes", map[string]any{"hoursBack": i + 1}))
	}
	steps = append(steps, providertest.Done("ok"))
	m := &providertest.Scripted{Steps: steps}

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(fetchEpisodes()))
	r := runner.New(m, reg, runner.Config{MaxIterations: 10, MaxTranscriptTokens: 300})

	res, err := r.Run(context.Background(), "get AI episodes")
	require.NoError(t, err)
	assert.Equal(t, session.StateDone, res.Outcome)

	last := m.Requests()[len(m.Requests())-1]
	assert.Less(t, len(last.Transcript), res.Transcript.Len()-1)
	assert.Equal(t, memory.KindGoal, last.Transcript[0].Kind)
	assert.Equal(t, memory.KindModel, last.Transcript[1].Kind)
}

func TestRun_WindowOverflowIsModelError(t *testing.T) {
	m := &providertest.Scripted{Steps: []providertest.Step{providertest.Done("x")}}
	reg := tools.NewRegistry()
	r := runner.New(m, reg, runner.Config{MaxTranscriptTokens: 3})
	res, err := r.Run(context.Background(), strings.Repeat("long goal ", 10))
	require.Error(t, err)
	assert.Equal(t, session.StateModelError, res.Outcome)
	assert.Zero(t, m.Calls())
}

func TestRun_MalformedArgumentsDegradeGracefully(t *testing.T) {
	m := &providertest.Scripted{Steps: []providertest.Step{
		{Response: provider.Response{
			Stop:    provider.StopToolRequested,
			RawStop: "tool_use",
			Calls:   []tools.Call{{ID: "t1", Name: "fetchEpisodes", Args: json.RawMessage(`{"hoursBack": 2`)}},
		}},
		providertest.Done("Could not read the feed window."),
	}}
	res, err := newRunner(t, m, 5).Run(context.Background(), "get AI episodes")
	require.NoError(t, err)
	assert.Equal(t, session.StateDone, res.Outcome)
	require.Len(t, res.Trace, 1)
	assert.False(t, res.Trace[0].Success)
	assert.Equal(t, tools.KindArgumentValidation, res.Trace[0].Kind)

	_, err = json.Marshal(res.Report)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "transcript.json")
	require.NoError(t, res.Transcript.Save(path))
	loaded, err := memory.Load(path)
	require.NoError(t, err)
	calls := loaded.Render()[1].Calls
	require.Len(t, calls, 1)
	var raw string
	require.NoError(t, json.Unmarshal(calls[0].Args, &raw))
	assert.Equal(t, `{"hoursBack": 2`, raw)
}

func TestRun_ToolModelUsageCounts(t *testing.T) {
	summarize := tools.Tool{
		Descriptor: tools.Descriptor{Name: "summarize"},
		Func: func(ctx context.Context, _ json.RawMessage) (any, error) {
			provider.ReportUsage(ctx, provider.Usage{InputTokens: 30, OutputTokens: 10})
			return "short", nil
		},
	}
	m := &providertest.Scripted{Model: "claude-3-haiku", Steps: []providertest.Step{
		providertest.ToolCall("t1", "summarize", map[string]any{}),
		providertest.Done("done"),
	}}
	res, err := newRunner(t, m, 5, summarize).Run(context.Background(), "summarize it")
	require.NoError(t, err)
	assert.Equal(t, provider.Usage{InputTokens: 250, OutputTokens: 70}, res.Usage)
	assert.Equal(t, int64(250), res.Report.InputTokens)
}

func TestRun_EmptyGoalRejected(t *testing.T) {
	res, err := newRunner(t, &providertest.Scripted{}, 3).Run(context.Background(), "")
	require.ErrorIs(t, err, memory.ErrEmptyGoal)
	assert.Nil(t, res)
}

func TestRunMany_IndependentSessionsInOrder(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(fetchEpisodes()))
	m := &providertest.Scripted{Repeat: true, Steps: []providertest.Step{providertest.Done("ok")}}
	r := runner.New(m, reg, runner.Config{MaxIterations: 2})

	goals := []string{"one", "two", "three", "four"}
	out := r.RunMany(context.Background(), goals, 2)
	require.Len(t, out, len(goals))
	ids := map[string]bool{}
	for i, br := range out {
		require.NoError(t, br.Err)
		assert.Equal(t, goals[i], br.Goal)
		assert.Equal(t, goals[i], br.Result.Transcript.Goal())
		assert.Equal(t, 1, br.Result.Iterations)
		ids[br.Result.SessionID] = true
	}
	assert.Len(t, ids, len(goals))
}
