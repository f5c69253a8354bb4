// Package fsops performs file IO confined to the sandbox roots.
package fsops

import (
	"github.com/petasbytes/toolloop/internal/safety"
)

// Sandbox resolves every path through the safety policy before touching disk.
type Sandbox struct {
	roots safety.Roots
}

// New resolves the roots once. Empty roots default as in safety.ResolveRoots.
func New(readRoot, writeRoot string) (*Sandbox, error) {
	roots, err := safety.ResolveRoots(readRoot, writeRoot)
	if err != nil {
		return nil, err
	}
	return &Sandbox{roots: roots}, nil
}

func (s *Sandbox) Roots() safety.Roots { return s.roots }
