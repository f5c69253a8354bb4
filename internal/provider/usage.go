package provider

import (
	"context"
	"sync"
)

// UsageMeter accumulates tokens spent by model calls that happen inside
// tools, outside the loop's own completions. It is safe for concurrent use.
type UsageMeter struct {
	mu    sync.Mutex
	total Usage
}

func (m *UsageMeter) Add(u Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total.InputTokens += u.InputTokens
	m.total.OutputTokens += u.OutputTokens
}

func (m *UsageMeter) Total() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

type meterKey struct{}

// WithUsageMeter attaches m to ctx for ReportUsage.
func WithUsageMeter(ctx context.Context, m *UsageMeter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// UsageMeterFrom returns the meter attached to ctx, or nil.
func UsageMeterFrom(ctx context.Context) *UsageMeter {
	m, _ := ctx.Value(meterKey{}).(*UsageMeter)
	return m
}

// ReportUsage adds u to the meter carried by ctx. Without one it is a no-op.
func ReportUsage(ctx context.Context, u Usage) {
	if m := UsageMeterFrom(ctx); m != nil {
		m.Add(u)
	}
}
