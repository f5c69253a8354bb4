package telemetry

import (
	"context"

	"github.com/petasbytes/toolloop/internal/metrics"
)

// EmitLocalFeatures records size features of the goal text. The text itself
// never leaves the process.
func EmitLocalFeatures(ctx context.Context, goal string) {
	if !ObserveEnabled() {
		return
	}
	f := metrics.CountFeatures(goal)
	fields := IDs(ctx)
	fields["features_version"] = "1"
	fields["goal"] = f.Fields()
	Emit("local_features", fields)
}
