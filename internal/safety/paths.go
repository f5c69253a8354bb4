// Package safety holds the path policy for sandboxed file access.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	CodeOutsideSandbox = "ERR_PATH_OUTSIDE_SANDBOX"
	CodeDeniedRead     = "ERR_DENIED_READ"
	CodeDeniedWrite    = "ERR_DENIED_WRITE"
	CodeNotAFile       = "ERR_NOT_A_FILE"
)

// ToolError is a policy violation. It renders as one line of JSON so it can
// travel inside a tool result unchanged.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// Roots are the absolute, symlink-resolved sandbox directories.
type Roots struct {
	Read  string
	Write string
}

// ResolveRoots makes read and write absolute. An empty read root is the
// working directory; an empty write root is the read root.
func ResolveRoots(read, write string) (Roots, error) {
	if read == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Roots{}, fmt.Errorf("getwd: %w", err)
		}
		read = cwd
	}
	if write == "" {
		write = read
	}
	r, err := absolute(read)
	if err != nil {
		return Roots{}, fmt.Errorf("read root: %w", err)
	}
	w, err := absolute(write)
	if err != nil {
		return Roots{}, fmt.Errorf("write root: %w", err)
	}
	return Roots{Read: r, Write: w}, nil
}

func absolute(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	// Roots that do not exist yet are kept as-is.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// resolveInside joins rel onto root and returns the absolute target plus its
// slash-separated form relative to root. Symlinks on the target, or on its
// parent when the target does not exist yet, are followed before the
// boundary check.
func resolveInside(root, rel string) (string, string, error) {
	outside := ToolError{Code: CodeOutsideSandbox, Message: "requested path resolves outside the sandbox root"}
	if filepath.IsAbs(rel) {
		return "", "", ToolError{Code: CodeOutsideSandbox, Message: "absolute paths are not allowed"}
	}

	target := filepath.Join(root, filepath.Clean(rel))
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	} else if parent, err := filepath.EvalSymlinks(filepath.Dir(target)); err == nil {
		target = filepath.Join(parent, filepath.Base(target))
	}

	r, err := filepath.Rel(root, target)
	if err != nil || filepath.IsAbs(r) || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", "", outside
	}
	return target, filepath.ToSlash(r), nil
}

func under(rel, dir string) bool {
	return rel == dir || strings.HasPrefix(rel, dir+"/")
}

// ValidateRelPath resolves relPath for reading under absRoot. Anything under
// .git/ or .agent/ is denied.
func ValidateRelPath(absRoot, relPath string) (string, error) {
	target, rel, err := resolveInside(absRoot, relPath)
	if err != nil {
		return "", err
	}
	if under(rel, ".git") || under(rel, ".agent") {
		return "", ToolError{Code: CodeDeniedRead, Message: "reads under .git/ or .agent/ are not allowed"}
	}
	return target, nil
}
