package tools

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateName = errors.New("duplicate tool name")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrInvalidTool   = errors.New("invalid tool")
)

// Registry maps tool names to their descriptor and implementation.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tool
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds t. The stored descriptor is a private copy, so later changes
// to t.Params do not leak into the registry.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	if t.Func == nil {
		return fmt.Errorf("%w: %s has no implementation", ErrInvalidTool, t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, t.Name)
	}
	t.Descriptor = t.Descriptor.clone()
	r.byName[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Lookup returns a copy of the named descriptor.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	t, err := r.Tool(name)
	if err != nil {
		return Descriptor{}, err
	}
	return t.Descriptor, nil
}

// Tool returns the bound tool for execution.
func (r *Registry) Tool(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	t.Descriptor = t.Descriptor.clone()
	return t, nil
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Descriptor.clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
