package telemetry

import "context"

type (
	turnIDKey    struct{}
	sessionIDKey struct{}
)

// WithTurnID returns a child context carrying the iteration (turn) ID.
// A nil ctx is treated as context.Background().
func WithTurnID(ctx context.Context, id string) context.Context {
	return withString(ctx, turnIDKey{}, id)
}

// TurnIDFromContext returns the turn ID, or "", false when absent or empty.
func TurnIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, turnIDKey{})
}

// WithSessionID returns a child context carrying the session ID.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withString(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the session ID, or "", false when absent or empty.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, sessionIDKey{})
}

// IDs returns the session and turn IDs as event fields.
func IDs(ctx context.Context) map[string]any {
	sid, _ := SessionIDFromContext(ctx)
	tid, _ := TurnIDFromContext(ctx)
	return map[string]any{"session_id": sid, "turn_id": tid}
}

func withString(ctx context.Context, key any, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func stringFrom(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
