// Package installer materializes resolved, rendered resources into the
// project tree: atomic single-file writes, directory installs for skills,
// merge-target JSON writes, and checksum computation (spec.md §4.H).
package installer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/agpm-project/agpm/pkg/core"
)

// writeFileAtomic writes data to path via a temp file in the same directory
// followed by rename, so a crash mid-write never leaves a truncated file at
// path (spec.md §4.H "write atomically (tmp + rename)"; §5 cancellation
// invariant).
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewInstallError(core.CodeOther, "creating directory %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".agpm-tmp-*")
	if err != nil {
		return core.NewInstallError(core.CodeOther, "creating temp file in %s: %v", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return core.NewInstallError(core.CodeOther, "writing %s: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return core.NewInstallError(core.CodeOther, "closing temp file for %s: %v", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return core.NewInstallError(core.CodeOther, "setting permissions on %s: %v", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return core.NewInstallError(core.CodeOther, "renaming into place at %s: %v", path, err)
	}
	return nil
}

// checksum returns the lowercase hex SHA-256 of data, spec.md §3's per-file
// integrity field.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
