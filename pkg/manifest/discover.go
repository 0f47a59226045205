package manifest

import (
	"os"
	"path/filepath"

	"github.com/agpm-project/agpm/pkg/core"
)

const (
	// FileName is the manifest's expected basename in a project root.
	FileName = "agpm.toml"
	// PrivateFileName is the optional per-developer patch overlay.
	PrivateFileName = "agpm.private.toml"
)

// Discover walks upward from startDir looking for agpm.toml, the way the
// teacher's CLI locates its own workflow root by walking up from CWD.
// Returns the directory containing the manifest.
func Discover(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", core.NewManifestError(core.CodeOther, "resolving start directory: %v", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", core.NewManifestError(core.CodeNotFound, "no %s found in %s or any parent directory", FileName, startDir)
		}
		dir = parent
	}
}
