package safety

import "path"

// protectedNames may not be written at any depth.
var protectedNames = map[string]bool{
	"go.mod": true,
	"go.sum": true,
}

// ValidateWritePath resolves relPath for writing under absRoot. On top of the
// read rules it denies writes to module files anywhere in the tree.
func ValidateWritePath(absRoot, relPath string) (string, error) {
	target, rel, err := resolveInside(absRoot, relPath)
	if err != nil {
		return "", err
	}
	if under(rel, ".git") || under(rel, ".agent") {
		return "", ToolError{Code: CodeDeniedWrite, Message: "writes under .git/ or .agent/ are not allowed"}
	}
	if protectedNames[path.Base(rel)] {
		return "", ToolError{Code: CodeDeniedWrite, Message: "writes to " + path.Base(rel) + " are not allowed"}
	}
	return target, nil
}
