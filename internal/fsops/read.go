package fsops

import (
	"bufio"
	"errors"
	"io/fs"
	"os"

	"github.com/petasbytes/toolloop/internal/safety"
)

// ReadFile reads relPath under the read root. Policy violations come back as
// safety.ToolError; IO failures are returned as-is.
func (s *Sandbox) ReadFile(relPath string) ([]byte, error) {
	abs, err := readable(s.roots.Read, relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// ReadLines returns the non-empty lines of relPath under the write root,
// where AppendFile puts them. A missing file yields no lines and no error.
func (s *Sandbox) ReadLines(relPath string) ([]string, error) {
	abs, err := readable(s.roots.Write, relPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func readable(root, relPath string) (string, error) {
	abs, err := safety.ValidateRelPath(root, relPath)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", safety.ToolError{Code: safety.CodeNotAFile, Message: "path is a directory"}
	}
	return abs, nil
}
