// Package constants holds small fixed values shared across agpm's CLI and
// pipeline packages: the program name, exit codes, and environment variable
// names (spec.md §6).
package constants

// CLIName is the prefix used in user-facing output and the root cobra
// command's Use field.
const CLIName = "agpm"

// Exit codes (spec.md §6). pkg/cli's exitWithCode passes them to os.Exit;
// cmd/agpm/main.go itself exits with ExitInvocationError when a command fails
// to parse or run outside that path.
const (
	ExitSuccess            = 0
	ExitValidationFailure  = 1
	ExitInvocationError    = 2
	ExitConcurrentLockBusy = 3
)

// Environment variable names agpm reads at the CLI boundary.
const (
	EnvCacheDir = "AGPM_CACHE_DIR"
	EnvTestMode = "AGPM_TEST_MODE"
	EnvNoColor  = "NO_COLOR"
)

// DefaultCacheDirName is the cache root's default directory name under the
// user's home directory, absent AGPM_CACHE_DIR.
const DefaultCacheDirName = ".agpm/cache"

// UserConfigFileName is the global (out-of-project-scope) config file `agpm
// config` edits, per spec.md §6.
const UserConfigFileName = ".agpm/config.toml"
