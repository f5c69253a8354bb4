package telemetry_test

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/toolloop/internal/telemetry"
)

func readEvents(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestEmit_Gating(t *testing.T) {
	// Subprocess so the startup-evaluated default sees AGT_OBSERVE_JSON=0.
	tmpDir := t.TempDir()
	cmd := exec.Command(os.Args[0], "-test.run=TestEmitGatingProbe")
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"AGT_OBSERVE_JSON=0",
		"AGT_ARTIFACTS_DIR="+tmpDir,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Contains(t, string(out), "no_file=true")
}

func TestEmitGatingProbe(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	telemetry.Emit("test_event", map[string]any{"foo": "bar"})
	if _, err := os.Stat(filepath.Join(telemetry.ArtifactsDir(), "events.jsonl")); os.IsNotExist(err) {
		println("no_file=true")
	} else {
		println("no_file=false")
	}
}

func TestEmit_HappyPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGT_ARTIFACTS_DIR", dir)
	t.Setenv("AGT_OBSERVE_JSON", "1")

	telemetry.Emit("model_call", map[string]any{"iteration": 2, "stop": "tool_use", "error": nil})

	events := readEvents(t, dir)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "model_call", ev["event"])
	assert.Equal(t, float64(2), ev["iteration"])
	assert.Equal(t, "tool_use", ev["stop"])
	assert.Contains(t, ev, "error")
	assert.Nil(t, ev["error"])

	ts, ok := ev["time"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestEmit_MultipleEmissionsAppend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dir with spaces")
	t.Setenv("AGT_ARTIFACTS_DIR", dir)
	t.Setenv("AGT_OBSERVE_JSON", "1")

	for _, name := range []string{"session_started", "tool_exec", "session_finished"} {
		telemetry.Emit(name, map[string]any{"n": name})
	}

	events := readEvents(t, dir)
	require.Len(t, events, 3)
	assert.Equal(t, "session_started", events[0]["event"])
	assert.Equal(t, "tool_exec", events[1]["event"])
	assert.Equal(t, "session_finished", events[2]["event"])

	raw, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), raw[len(raw)-1])
}

func TestEmit_MapIsolationAndReservedKeys(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGT_ARTIFACTS_DIR", dir)
	t.Setenv("AGT_OBSERVE_JSON", "1")

	fields := map[string]any{"key": "value", "event": "spoofed"}
	telemetry.Emit("real", fields)

	assert.Len(t, fields, 2)
	assert.NotContains(t, fields, "time")

	events := readEvents(t, dir)
	require.Len(t, events, 1)
	assert.Equal(t, "real", events[0]["event"])
}

func TestEmit_UnwritableDirDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	ro := filepath.Join(dir, "ro")
	require.NoError(t, os.Mkdir(ro, 0o555))
	t.Cleanup(func() { _ = os.Chmod(ro, 0o755) })

	t.Setenv("AGT_ARTIFACTS_DIR", ro)
	t.Setenv("AGT_OBSERVE_JSON", "1")

	assert.NotPanics(t, func() {
		telemetry.Emit("test", map[string]any{"foo": "bar"})
	})
}
