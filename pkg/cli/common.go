package cli

import (
	"os"
	"path/filepath"

	"github.com/agpm-project/agpm/pkg/constants"
	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/pipeline"
)

// resolveCacheRoot honors AGPM_CACHE_DIR, falling back to
// ~/.agpm/cache (spec.md §6 "Environment").
func resolveCacheRoot() (string, error) {
	if dir := os.Getenv(constants.EnvCacheDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, constants.DefaultCacheDirName), nil
}

// newPipeline builds a *pipeline.Pipeline rooted at the resolved cache dir.
func newPipeline() (*pipeline.Pipeline, error) {
	cacheRoot, err := resolveCacheRoot()
	if err != nil {
		return nil, err
	}
	return pipeline.New(cacheRoot)
}

// projectDir returns the current working directory, the project root every
// command operates relative to (agpm has no global project-discovery walk:
// it always runs from the directory containing agpm.toml, like the teacher's
// own cwd-relative commands).
func projectDir() (string, error) {
	return os.Getwd()
}

// exitCodeForError maps a pipeline/manifest/lockfile error to spec.md §6's
// exit codes: lock contention is distinguished (3) from every other
// validation/installation failure (1).
func exitCodeForError(err error) int {
	if err == nil {
		return constants.ExitSuccess
	}
	if core.IsCode(err, core.CodeLockBusy) {
		return constants.ExitConcurrentLockBusy
	}
	return constants.ExitValidationFailure
}
