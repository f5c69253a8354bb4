package telemetry

import (
	"os"
	"sync"
)

const (
	defaultArtifactsDir = ".agent"
	eventsFile          = "events.jsonl"
)

var (
	cfgMu          sync.RWMutex
	observeEnabled bool
	artifactsDir   = defaultArtifactsDir
)

func init() {
	// Read once at process start; Configure may override later.
	observeEnabled = os.Getenv("AGT_OBSERVE_JSON") == "1"
	if d := os.Getenv("AGT_ARTIFACTS_DIR"); d != "" {
		artifactsDir = d
	}
}

// Options carries the telemetry settings resolved from config.
type Options struct {
	Observe      bool
	ArtifactsDir string
}

// Configure replaces the startup settings. An empty ArtifactsDir keeps the current one.
func Configure(o Options) {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	observeEnabled = o.Observe
	if o.ArtifactsDir != "" {
		artifactsDir = o.ArtifactsDir
	}
}

// ObserveEnabled reports whether JSONL emission is on.
func ObserveEnabled() bool {
	// Allow tests to enable mid-run via env override.
	if os.Getenv("AGT_OBSERVE_JSON") == "1" {
		return true
	}
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return observeEnabled
}

// ArtifactsDir is where events.jsonl is written. AGT_ARTIFACTS_DIR wins when set.
func ArtifactsDir() string {
	if d := os.Getenv("AGT_ARTIFACTS_DIR"); d != "" {
		return d
	}
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return artifactsDir
}
