package telemetry

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	writeMu sync.Mutex
	diag    = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Str("component", "telemetry").Logger()
)

// Emit appends one JSON line to <artifacts>/events.jsonl when observation is on.
// Every line carries "event" and an RFC3339Nano "time"; caller keys with those
// names are ignored. Failures are reported on stderr and never returned.
func Emit(name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}

	dir := ArtifactsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		diag.Warn().Err(err).Str("dir", dir).Msg("mkdir")
		return
	}
	path := filepath.Join(dir, eventsFile)

	writeMu.Lock()
	defer writeMu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		diag.Warn().Err(err).Str("path", path).Msg("open")
		return
	}
	defer f.Close()

	// Copy so callers' maps aren't mutated.
	m := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "event" || k == "time" {
			continue
		}
		m[k] = v
	}

	l := zerolog.New(f)
	l.Log().
		Str("time", time.Now().UTC().Format(time.RFC3339Nano)).
		Str("event", name).
		Fields(m).
		Send()
}
