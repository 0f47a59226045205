package installer

import (
	"path/filepath"
	"strings"

	"github.com/agpm-project/agpm/pkg/core"
)

// ResolveWithinRoot joins root and relPath, then verifies the result is
// still inside root — rejecting "..", absolute overrides, symlink-free
// traversal attempts, and any path component named ".git" (spec.md §4.H
// "any attempt to escape ... raises PathEscape"; §8 "no installed path
// equals or contains .git"). Returns the cleaned absolute path.
func ResolveWithinRoot(root, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", core.NewInstallError(core.CodePathEscape, "installed_at %q must be relative", relPath)
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if part == ".git" {
			return "", core.NewInstallError(core.CodePathEscape, "installed_at %q contains a .git path component", relPath)
		}
	}
	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, relPath)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", core.NewInstallError(core.CodePathEscape, "installed_at %q escapes root %q", relPath, root)
	}
	return joined, nil
}
