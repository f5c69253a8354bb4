package safety_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/toolloop/internal/safety"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var te safety.ToolError
	require.True(t, errors.As(err, &te), "expected ToolError, got %T: %v", err, err)
	assert.Equal(t, code, te.Code)
}

func TestResolveRoots_Defaults(t *testing.T) {
	dir := t.TempDir()
	roots, err := safety.ResolveRoots(dir, "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(roots.Read))
	assert.Equal(t, roots.Read, roots.Write)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	roots, err = safety.ResolveRoots("", "")
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(cwd)
	assert.Equal(t, want, roots.Read)
}

func TestValidateRelPath_BasicRejections(t *testing.T) {
	root := t.TempDir()
	abs, err := filepath.Abs(".")
	require.NoError(t, err)

	_, err = safety.ValidateRelPath(root, abs)
	requireCode(t, err, safety.CodeOutsideSandbox)

	_, err = safety.ValidateRelPath(root, "../../x")
	requireCode(t, err, safety.CodeOutsideSandbox)
}

func TestValidateRelPath_ReadDenylist(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".agent"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	for _, p := range []string{".agent/conv.json", ".git/HEAD", ".git"} {
		_, err := safety.ValidateRelPath(root, p)
		requireCode(t, err, safety.CodeDeniedRead)
	}

	// A sibling that only shares the prefix is fine.
	_, err := safety.ValidateRelPath(root, ".github/workflows/ci.yml")
	assert.NoError(t, err)
}

func TestValidateRelPath_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test skipped on Windows")
	}
	root := t.TempDir()
	if err := os.Symlink(t.TempDir(), filepath.Join(root, "out")); err != nil {
		t.Skipf("symlink not allowed on this FS: %v", err)
	}
	_, err := safety.ValidateRelPath(root, "out/escape.txt")
	requireCode(t, err, safety.CodeOutsideSandbox)
}

func TestToolError_RendersJSON(t *testing.T) {
	err := safety.ToolError{Code: safety.CodeNotAFile, Message: "path is a directory"}
	assert.JSONEq(t, `{"code":"ERR_NOT_A_FILE","message":"path is a directory"}`, err.Error())
}
