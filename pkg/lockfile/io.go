package lockfile

import (
	"os"
	"path/filepath"

	"github.com/agpm-project/agpm/pkg/core"
)

// FileName is the lockfile's fixed name within a project root.
const FileName = "agpm.lock"

// Load reads and parses the lockfile at path. A missing file is not an
// error: it returns (nil, nil), the caller's cue for a from-scratch install.
func Load(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewLockfileError(core.CodeOther, "reading %s: %v", path, err)
	}
	return Unmarshal(data)
}

// Save writes lf to path atomically (tmp file + rename, matching every
// other on-disk writer in this module), at 0644.
func Save(path string, lf *LockFile) error {
	data, err := Marshal(lf)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewLockfileError(core.CodeOther, "creating %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".agpm-lock-tmp-*")
	if err != nil {
		return core.NewLockfileError(core.CodeOther, "creating temp file in %s: %v", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.NewLockfileError(core.CodeOther, "writing %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return core.NewLockfileError(core.CodeOther, "closing %s: %v", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return core.NewLockfileError(core.CodeOther, "chmod %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return core.NewLockfileError(core.CodeOther, "renaming %s to %s: %v", tmpName, path, err)
	}
	return nil
}
