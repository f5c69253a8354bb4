package fsops

import (
	"os"
	"path/filepath"

	"github.com/petasbytes/toolloop/internal/safety"
)

// WriteFile replaces relPath under the write root, creating parents.
func (s *Sandbox) WriteFile(relPath string, data []byte) (string, error) {
	abs, err := s.writable(relPath)
	if err != nil {
		return "", err
	}
	return abs, os.WriteFile(abs, data, 0o644)
}

// AppendFile appends data to relPath under the write root, creating the file
// and its parents when needed.
func (s *Sandbox) AppendFile(relPath string, data []byte) error {
	abs, err := s.writable(relPath)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *Sandbox) writable(relPath string) (string, error) {
	abs, err := safety.ValidateWritePath(s.roots.Write, relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
