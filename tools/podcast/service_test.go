package podcast_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/toolloop/internal/executor"
	"github.com/petasbytes/toolloop/internal/fsops"
	"github.com/petasbytes/toolloop/internal/provider"
	"github.com/petasbytes/toolloop/internal/provider/providertest"
	"github.com/petasbytes/toolloop/internal/telemetry"
	"github.com/petasbytes/toolloop/tools"
	"github.com/petasbytes/toolloop/tools/podcast"
	"github.com/petasbytes/toolloop/tools/search"
)

var fixedNow = time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)

type fakeWeb struct{ query string }

func (f *fakeWeb) WebSearch(_ context.Context, q string, n int) (search.Response[search.WebResult], error) {
	f.query = q
	return search.Response[search.WebResult]{Success: true, Total: 1, Results: []search.WebResult{
		{Title: "The Robot Brains Podcast", URL: "https://example.com/robot-brains", Content: "Interviews with AI researchers", Score: 0.92},
	}}, nil
}

type fakePages struct {
	pages map[string]string
}

func (f fakePages) Fetch(_ context.Context, u string, _ int) (search.Page, error) {
	text, ok := f.pages[u]
	if !ok {
		return search.Page{}, errors.New("not found")
	}
	return search.Page{Success: true, URL: u, Text: text, Length: len(text), Extractor: "readability"}, nil
}

type harness struct {
	dir   string
	web   *fakeWeb
	model *providertest.Scripted
	ex    *executor.Executor
}

func newHarness(t *testing.T, prefsYAML string) *harness {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	if prefsYAML != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "prefs.yaml"), []byte(prefsYAML), 0o644))
	}
	sb, err := fsops.New(dir, "")
	require.NoError(t, err)

	srv := feedServer(t)
	h := &harness{
		dir: dir,
		web: &fakeWeb{},
		model: &providertest.Scripted{Model: "claude-3-haiku", Steps: []providertest.Step{
			providertest.Done("LeCun argues current LLMs lack world models."),
		}},
	}
	svc, err := podcast.NewService(podcast.Config{
		PreferencesPath: "prefs.yaml",
		Subscriptions: []podcast.Subscription{
			{Name: "AI Weekly", RSSURL: srv.URL + "/rss"},
			{Name: "Acquired", RSSURL: srv.URL + "/atom"},
		},
		To: []string{"me@example.com"},
	}, podcast.Deps{
		Sandbox:    sb,
		HTTPClient: srv.Client(),
		Web:        h.web,
		Pages:      fakePages{pages: map[string]string{"https://example.com/ep1": "Lex: Welcome Yann LeCun..."}},
		Model:      h.model,
		Clock:      func() time.Time { return fixedNow },
		Sampling:   provider.Sampling{Temperature: 0.3},
	})
	require.NoError(t, err)

	reg := tools.NewRegistry()
	for _, tl := range svc.Tools() {
		require.NoError(t, reg.Register(tl))
	}
	h.ex = executor.New(reg)
	return h
}

func (h *harness) call(t *testing.T, name, args string) map[string]any {
	t.Helper()
	res := h.ex.Execute(context.Background(), tools.Call{ID: name, Name: name, Args: json.RawMessage(args)})
	require.True(t, res.Success, "%s failed: %s", name, res.Error)
	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	return out
}

func TestService_ToolsetComplete(t *testing.T) {
	h := newHarness(t, "")
	var names []string
	for _, d := range []string{
		"check_user_preferences", "fetch_new_episodes", "search_web_for_podcasts",
		"analyze_episode_relevance", "get_transcript", "generate_summary",
		"send_email_digest", "save_for_later", "list_saved",
	} {
		res := h.ex.Execute(context.Background(), tools.Call{Name: d, Args: json.RawMessage(`{"__check":1}`)})
		if res.Kind == tools.KindUnknownTool {
			names = append(names, d)
		}
	}
	assert.Empty(t, names, "missing tools")
}

func TestCheckPreferences_DefaultsAndFile(t *testing.T) {
	h := newHarness(t, "")
	out := h.call(t, "check_user_preferences", `{}`)
	assert.Equal(t, "defaults", out["source"])
	prefs := out["preferences"].(map[string]any)
	assert.Equal(t, []any{"AI", "productivity", "technology"}, prefs["interests"])
	assert.Len(t, prefs["subscriptions"], 2)

	h = newHarness(t, `
interests: [quantum computing, robotics]
summary_style: technical
email_frequency: weekly
subscriptions:
  - name: Extra
    rss_url: https://example.com/extra.xml
`)
	out = h.call(t, "check_user_preferences", `{}`)
	assert.Equal(t, "prefs.yaml", out["source"])
	prefs = out["preferences"].(map[string]any)
	assert.Equal(t, []any{"quantum computing", "robotics"}, prefs["interests"])
	assert.Equal(t, "technical", prefs["summary_style"])
	assert.Equal(t, "detailed", prefs["preferred_length"])
	assert.Len(t, prefs["subscriptions"], 3)
}

func TestCheckPreferences_BadStyle(t *testing.T) {
	h := newHarness(t, "summary_style: verbose\n")
	res := h.ex.Execute(context.Background(), tools.Call{Name: "check_user_preferences", Args: json.RawMessage(`{}`)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "summary_style")
}

func TestFetchThenTranscriptThenSummary(t *testing.T) {
	h := newHarness(t, "")

	out := h.call(t, "fetch_new_episodes", `{}`)
	assert.Equal(t, "Last 24 hours", out["time_range"])
	eps := out["episodes"].([]any)
	require.Len(t, eps, 2)
	first := eps[0].(map[string]any)
	id := first["id"].(string)

	out = h.call(t, "get_transcript", `{"episode_id":"`+id+`"}`)
	assert.Equal(t, "Lex: Welcome Yann LeCun...", out["transcript"])
	assert.Equal(t, "Yann LeCun on World Models", out["title"])

	out = h.call(t, "generate_summary", `{"episode_id":"`+id+`","content":"Lex: Welcome Yann LeCun...","style":"detailed","focus_areas":["AI safety"]}`)
	assert.Equal(t, "LeCun argues current LLMs lack world models.", out["summary"])
	assert.Equal(t, "detailed", out["style_used"])
	assert.Equal(t, id, out["episode_id"])
	assert.Equal(t, map[string]any{"input_tokens": 120.0, "output_tokens": 40.0}, out["usage"])

	reqs := h.model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, provider.Sampling{Temperature: 0.3, MaxTokens: 800}, reqs[0].Sampling)
	prompt := reqs[0].Transcript[0].Text
	assert.True(t, strings.HasPrefix(prompt, "Create a detailed summary with 5-7 key bullet points."))
	assert.Contains(t, prompt, "Episode Title: Yann LeCun on World Models")
	assert.Contains(t, prompt, "Focus on: AI safety")
	assert.Empty(t, reqs[0].Tools)
}

func TestEpisodesAreScopedToSession(t *testing.T) {
	h := newHarness(t, "")
	first := telemetry.WithSessionID(context.Background(), "sess-a")
	second := telemetry.WithSessionID(context.Background(), "sess-b")

	res := h.ex.Execute(first, tools.Call{Name: "fetch_new_episodes", Args: json.RawMessage(`{}`)})
	require.True(t, res.Success, res.Error)
	var out struct {
		Episodes []struct {
			ID string `json:"id"`
		} `json:"episodes"`
	}
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	require.NotEmpty(t, out.Episodes)
	args := json.RawMessage(`{"episode_id":"` + out.Episodes[0].ID + `"}`)

	res = h.ex.Execute(first, tools.Call{Name: "get_transcript", Args: args})
	assert.True(t, res.Success, res.Error)

	res = h.ex.Execute(second, tools.Call{Name: "get_transcript", Args: args})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "fetch_new_episodes first")
}

func TestGenerateSummary_ReportsUsage(t *testing.T) {
	h := newHarness(t, "")
	meter := &provider.UsageMeter{}
	ctx := provider.WithUsageMeter(context.Background(), meter)

	res := h.ex.Execute(ctx, tools.Call{Name: "generate_summary", Args: json.RawMessage(`{"content":"Lex: Welcome Yann LeCun..."}`)})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, provider.Usage{InputTokens: 120, OutputTokens: 40}, meter.Total())
}

func TestFetchNewEpisodes_WindowFromClock(t *testing.T) {
	h := newHarness(t, "")
	// 12h before 2024-01-03 09:00 is after both fixtures.
	out := h.call(t, "fetch_new_episodes", `{"hours_back":12}`)
	assert.EqualValues(t, 0, out["count"])
	assert.Equal(t, "Last 12 hours", out["time_range"])
}

func TestGetTranscript_UnknownEpisode(t *testing.T) {
	h := newHarness(t, "")
	res := h.ex.Execute(context.Background(), tools.Call{Name: "get_transcript", Args: json.RawMessage(`{"episode_id":"ep_nope"}`)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "fetch_new_episodes first")
}

func TestSearchWebForPodcasts(t *testing.T) {
	h := newHarness(t, "")
	out := h.call(t, "search_web_for_podcasts", `{"topics":["AI safety","quantum computing"]}`)
	assert.Equal(t, "AI safety quantum computing podcast", h.web.query)
	recs := out["recommendations"].([]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "The Robot Brains Podcast", recs[0].(map[string]any)["name"])
}

func TestSendEmailDigest_OutboxOnce(t *testing.T) {
	h := newHarness(t, "")
	args := `{"subject":"Your AI digest","content":"# Top picks\n- LeCun","priority":"high"}`

	out := h.call(t, "send_email_digest", args)
	assert.Equal(t, "outbox", out["transport"])
	path := out["path"].(string)
	assert.True(t, strings.HasPrefix(path, filepath.Join(h.dir, "outbox")+string(filepath.Separator)))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	msg := string(b)
	assert.Contains(t, msg, "To: me@example.com\r\n")
	assert.Contains(t, msg, "Subject: Your AI digest\r\n")
	assert.Contains(t, msg, "X-Priority: 1 (Highest)\r\n")
	assert.Contains(t, msg, "\r\n\r\n# Top picks\r\n- LeCun\r\n")

	res := h.ex.Execute(context.Background(), tools.Call{Name: "send_email_digest", Args: json.RawMessage(args)})
	assert.Equal(t, tools.KindDuplicateCall, res.Kind)
	files, err := os.ReadDir(filepath.Join(h.dir, "outbox"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSaveForLaterAndList(t *testing.T) {
	h := newHarness(t, "")
	h.call(t, "fetch_new_episodes", `{"hours_back":48}`)

	out := h.call(t, "list_saved", `{}`)
	assert.EqualValues(t, 0, out["count"])

	out = h.call(t, "save_for_later", `{"episode_id":"ep_abc","reason":"Good but long"}`)
	assert.Equal(t, "Episode ep_abc saved to reading list", out["message"])
	h.call(t, "save_for_later", `{"episode_id":"ep_def","reason":"Later"}`)

	out = h.call(t, "list_saved", `{}`)
	assert.EqualValues(t, 2, out["count"])
	entries := out["entries"].([]any)
	first := entries[0].(map[string]any)
	assert.Equal(t, "ep_abc", first["episode_id"])
	assert.Equal(t, "Good but long", first["reason"])
	assert.NotEmpty(t, first["id"])
	assert.FileExists(t, filepath.Join(h.dir, podcast.DefaultReadingList))
}
