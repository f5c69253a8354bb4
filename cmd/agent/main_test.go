package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/toolloop/memory"
)

const endTurn = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-haiku-20240307",` +
	`"content":[{"type":"text","text":"Start with the Go blog and Effective Go."}],` +
	`"stop_reason":"end_turn","usage":{"input_tokens":40,"output_tokens":12}}`

type messagesAPI struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (m *messagesAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	m.mu.Lock()
	m.bodies = append(m.bodies, b)
	m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, endTurn)
}

// setupCLI writes a config pointing the Anthropic adapter at a local server
// and returns its path.
func setupCLI(t *testing.T) (string, *messagesAPI) {
	t.Helper()
	t.Setenv("AGT_OBSERVE_JSON", "")
	t.Setenv("AGT_ARTIFACTS_DIR", t.TempDir())
	t.Setenv("AGT_MODEL_PROVIDER", "")

	api := &messagesAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := "model:\n" +
		"  api_key: sk-test\n" +
		"  base_url: " + srv.URL + "\n" +
		"sandbox:\n" +
		"  read_root: " + dir + "\n" +
		"telemetry:\n" +
		"  log_level: error\n"
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, api
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestToolsCommand(t *testing.T) {
	cfg, _ := setupCLI(t)
	out, _, err := execute(t, "--config", cfg, "tools", "--workflow", "discovery")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "arxiv_search")
	assert.Contains(t, out, "query*")
	assert.Contains(t, out, "web_fetch")
}

func TestToolsCommand_PodcastMarksSideEffects(t *testing.T) {
	cfg, _ := setupCLI(t)
	out, _, err := execute(t, "--config", cfg, "tools", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "send_email_digest"`)
	assert.Contains(t, out, `"side_effecting": true`)
}

func TestDiscoverCommand_PrintsAnswerAndExports(t *testing.T) {
	cfg, api := setupCLI(t)
	export := filepath.Join(t.TempDir(), "transcript.json")

	out, errOut, err := execute(t, "--config", cfg, "--export", export, "discover", "go", "generics")
	require.NoError(t, err)
	assert.Contains(t, out, "Start with the Go blog and Effective Go.")
	assert.Contains(t, errOut, "[done]")
	assert.Contains(t, errOut, "1 iteration(s)")

	require.Len(t, api.bodies, 1)
	assert.Contains(t, string(api.bodies[0]), "I want to learn about: go generics")

	tr, err := memory.Load(export)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "I want to learn about: go generics\n\nPlease find me the best resources available.", tr.Goal())
	assert.Equal(t, 2, tr.Len())
}

func TestBatchCommand_RunsEveryGoal(t *testing.T) {
	cfg, api := setupCLI(t)
	out, _, err := execute(t, "--config", cfg, "batch", "-w", "discovery", "-c", "2", "rust", "zig")
	require.NoError(t, err)
	assert.Contains(t, out, "=== 1: rust")
	assert.Contains(t, out, "=== 2: zig")
	assert.Len(t, api.bodies, 2)
}

func TestInvalidOverrideIsRejected(t *testing.T) {
	cfg, api := setupCLI(t)
	_, _, err := execute(t, "--config", cfg, "--max-iterations=-1", "run", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_iterations")
	assert.Empty(t, api.bodies)
}

func TestUnknownWorkflow(t *testing.T) {
	cfg, _ := setupCLI(t)
	_, _, err := execute(t, "--config", cfg, "run", "--workflow", "nope", "x")
	assert.ErrorContains(t, err, "unknown workflow")
}

func TestScheduleRequiresCron(t *testing.T) {
	cfg, _ := setupCLI(t)
	_, _, err := execute(t, "--config", cfg, "schedule", "goal")
	assert.ErrorContains(t, err, "cron")
}

func TestScheduleRejectsBadExpression(t *testing.T) {
	cfg, _ := setupCLI(t)
	_, _, err := execute(t, "--config", cfg, "schedule", "--cron", "every morning", "goal")
	assert.ErrorContains(t, err, "invalid cron expression")
}

func TestNumbered(t *testing.T) {
	assert.Equal(t, "out-2.json", numbered("out.json", 2))
	assert.Equal(t, "dir/trace-1", numbered("dir/trace", 1))
	assert.Equal(t, "", numbered("", 3))
}
