package installer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agpm-project/agpm/pkg/core"
)

// DirLimits bounds a directory resource install, per spec.md §4.H.
type DirLimits struct {
	MaxTotalSize int64 // default 100 MiB
	MaxFileCount int   // default 1000
}

// DefaultDirLimits returns spec.md §4.H's stated defaults.
func DefaultDirLimits() DirLimits {
	return DirLimits{MaxTotalSize: 100 << 20, MaxFileCount: 1000}
}

// DirEntry is one file within a directory-valued resource (a skill),
// relative to the resource's own root.
type DirEntry struct {
	RelPath string
	Data    []byte
}

// InstallDirectory writes every entry under toolRoot/installedAt, enforcing
// size and file-count limits and skipping dotfiles, then returns the
// composite checksum of spec.md §3: a SHA-256 over sorted
// (relpath, \0, bytes) tuples, plus the sorted list of installed relative
// paths for the lockfile entry's `files` field.
func InstallDirectory(toolRoot, installedAt string, entries []DirEntry, limits DirLimits) (string, []string, error) {
	filtered := make([]DirEntry, 0, len(entries))
	var total int64
	for _, e := range entries {
		if isDotfilePath(e.RelPath) {
			continue
		}
		filtered = append(filtered, e)
		total += int64(len(e.Data))
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].RelPath < filtered[j].RelPath })

	if limits.MaxFileCount > 0 && len(filtered) > limits.MaxFileCount {
		return "", nil, core.NewInstallError(core.CodeFileCountLimit,
			"%s: %d files exceeds limit of %d", installedAt, len(filtered), limits.MaxFileCount)
	}
	if limits.MaxTotalSize > 0 && total > limits.MaxTotalSize {
		return "", nil, core.NewInstallError(core.CodeSizeLimit,
			"%s: %d bytes exceeds limit of %d", installedAt, total, limits.MaxTotalSize)
	}

	root, err := ResolveWithinRoot(toolRoot, installedAt)
	if err != nil {
		return "", nil, err
	}
	if err := os.RemoveAll(root); err != nil {
		return "", nil, core.NewInstallError(core.CodeOther, "clearing previous install at %s: %v", root, err)
	}

	h := sha256.New()
	files := make([]string, 0, len(filtered))
	for _, e := range filtered {
		relClean := filepath.ToSlash(filepath.Clean(e.RelPath))
		target, err := ResolveWithinRoot(root, e.RelPath)
		if err != nil {
			return "", nil, err
		}
		if err := writeFileAtomic(target, e.Data, 0o644); err != nil {
			return "", nil, err
		}
		h.Write([]byte(relClean))
		h.Write([]byte{0})
		h.Write(e.Data)
		files = append(files, filepath.Join(installedAt, relClean))
	}

	return hex.EncodeToString(h.Sum(nil)), files, nil
}

// RemoveDirectory recursively removes a previously installed directory
// resource. Missing directories are not an error.
func RemoveDirectory(toolRoot, installedAt string) error {
	target, err := ResolveWithinRoot(toolRoot, installedAt)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isDotfilePath(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
