package core

import "fmt"

// StageError is the common shape of every error taxonomy in spec.md §7: a
// stage-specific code, an optional resource/source context for diagnostics,
// and an underlying cause. Concrete stage errors (ManifestError,
// ResolutionError, ...) embed *StageError and add stage-specific fields.
type StageError struct {
	Stage   string // e.g. "manifest", "resolution", "template", "install", "lockfile", "cache"
	Code    string // e.g. "RefNotFound", "PathEscape"
	Message string
	Ctx     map[string]string
	Cause   error
}

func (e *StageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Cause }

// Context returns the resource/source/commit/path diagnostics attached to
// the error, per spec.md §7 ("errors bubble out ... with full context").
func (e *StageError) Context() map[string]string {
	if e.Ctx == nil {
		return map[string]string{}
	}
	return e.Ctx
}

// WithContext returns e with an additional context key set, for chaining as
// an error crosses stage boundaries (e.g. resolver adds "source", discovery
// adds "dependency_chain").
func (e *StageError) WithContext(key, value string) *StageError {
	if e.Ctx == nil {
		e.Ctx = map[string]string{}
	}
	e.Ctx[key] = value
	return e
}

func newStageError(stage, code, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Manifest errors: parse, schema, missing source reference, duplicate alias.
func NewManifestError(code, format string, args ...any) *StageError {
	return newStageError("manifest", code, format, args...)
}

// Source errors: unreachable, auth required, invalid URL.
func NewSourceError(code, format string, args ...any) *StageError {
	return newStageError("source", code, format, args...)
}

// Resolution errors: RefNotFound, AmbiguousRev, VersionConflict,
// PatternNoMatch, DependencyCycle, ResourceNotFound.
func NewResolutionError(code, format string, args ...any) *StageError {
	return newStageError("resolution", code, format, args...)
}

// Template errors: syntax, undefined variable, content-file missing/too large.
func NewTemplateError(code, format string, args ...any) *StageError {
	return newStageError("template", code, format, args...)
}

// Install errors: path-escape, IO, size-limit, file-count-limit, merge-target invalid.
func NewInstallError(code, format string, args ...any) *StageError {
	return newStageError("install", code, format, args...)
}

// Lockfile errors: version-too-new, corruption.
func NewLockfileError(code, format string, args ...any) *StageError {
	return newStageError("lockfile", code, format, args...)
}

// Cache errors: lock contention, invalid worktree, stale lock.
func NewCacheError(code, format string, args ...any) *StageError {
	return newStageError("cache", code, format, args...)
}

// Git driver errors: NotFound, AuthRequired, RefNotFound, NetworkError,
// LockBusy, Other (spec.md §4.A). Kept distinct from StageError because
// pkg/gitdriver must not import pkg/core's higher-level stages; gitdriver.go
// defines its own GitError and pkg/core re-exports the code constants other
// packages match on.
const (
	CodeNotFound         = "NotFound"
	CodeAuthRequired     = "AuthRequired"
	CodeRefNotFound      = "RefNotFound"
	CodeNetworkError     = "NetworkError"
	CodeLockBusy         = "LockBusy"
	CodeOther            = "Other"
	CodeAmbiguousRev     = "AmbiguousRev"
	CodeVersionConflict  = "VersionConflict"
	CodePatternNoMatch   = "PatternNoMatch"
	CodeDependencyCycle  = "DependencyCycle"
	CodeResourceNotFound = "ResourceNotFound"
	CodePathEscape       = "PathEscape"
	CodeSizeLimit        = "SizeLimit"
	CodeFileCountLimit   = "FileCountLimit"
	CodeMergeTargetBad   = "MergeTargetInvalid"
	CodeVersionTooNew    = "VersionTooNew"
	CodeCorruption       = "Corruption"
)

// IsCode reports whether err is a *StageError with the given code, unwrapping
// as needed.
func IsCode(err error, code string) bool {
	for err != nil {
		if se, ok := err.(*StageError); ok {
			if se.Code == code {
				return true
			}
			err = se.Cause
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
