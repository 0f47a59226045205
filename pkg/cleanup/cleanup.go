// Package cleanup removes on-disk artifacts an install run no longer
// claims: files whose lockfile entry disappeared, moved, or switched to
// install=false between the previous and current lockfile (spec.md §4.J).
package cleanup

import (
	"os"
	"path/filepath"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/installer"
	"github.com/agpm-project/agpm/pkg/lockfile"
)

// Report summarizes one cleanup pass, for the pipeline's end-of-run output.
type Report struct {
	Removed []string // installed_at paths that were deleted
	Errors  []error  // best-effort: collected, not fatal
}

// Run compares oldLock against newLock and deletes any project-relative
// installed_at path present in oldLock but absent (or install=false) in
// newLock, then prunes resulting empty parent directories up to the tool
// root. A nil oldLock (fresh install) is a no-op. File removal is
// best-effort: individual failures are appended to Report.Errors rather
// than aborting the pass, matching spec.md §4.J's "cleanup never fails the
// install" guarantee.
func Run(projectDir string, oldLock, newLock *lockfile.LockFile) Report {
	var report Report
	if oldLock == nil {
		return report
	}

	keep := map[string]bool{}
	if newLock != nil {
		for _, r := range newLock.AllResources() {
			if !r.SkipInstall {
				keep[r.InstalledAt] = true
			}
		}
	}

	for _, old := range oldLock.AllResources() {
		if old.SkipInstall {
			continue
		}
		if keep[old.InstalledAt] {
			continue
		}

		fullPath := filepath.Join(projectDir, old.InstalledAt)
		info, err := os.Lstat(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			report.Errors = append(report.Errors, core.NewInstallError(core.CodeOther, "stat %s: %v", fullPath, err))
			continue
		}

		var removeErr error
		if old.Kind.IsDirectory() || info.IsDir() {
			removeErr = installer.RemoveDirectory(projectDir, old.InstalledAt)
		} else {
			removeErr = installer.RemoveFile(projectDir, old.InstalledAt)
		}
		if removeErr != nil {
			report.Errors = append(report.Errors, removeErr)
			continue
		}

		report.Removed = append(report.Removed, old.InstalledAt)
		pruneEmptyDirs(fullPath)
	}

	return report
}

// pruneEmptyDirs walks up from the parent of the removed path, deleting
// directories that are now empty, stopping at a tool-root directory named
// ".claude" or at the filesystem root — whichever comes first (spec.md
// §4.J "directory accumulation").
func pruneEmptyDirs(removedPath string) {
	dir := filepath.Dir(removedPath)
	for {
		if filepath.Base(dir) == ".claude" {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}

		if err := os.Remove(dir); err != nil {
			if os.IsNotExist(err) {
				dir = parent
				continue
			}
			return // ENOTEMPTY, EPERM, or anything else: stop, best-effort
		}
		dir = parent
	}
}
