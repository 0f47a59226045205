package installer

import "os"

// InstallFile atomically writes data to toolRoot/installedAt and returns its
// SHA-256 checksum (spec.md §4.H "single-file" case). executable preserves
// the executable bit for script resources.
func InstallFile(toolRoot, installedAt string, data []byte, executable bool) (string, error) {
	target, err := ResolveWithinRoot(toolRoot, installedAt)
	if err != nil {
		return "", err
	}
	perm := os.FileMode(0o644)
	if executable {
		perm = 0o755
	}
	if err := writeFileAtomic(target, data, perm); err != nil {
		return "", err
	}
	return checksum(data), nil
}

// RemoveFile deletes a previously installed single-file artifact. Missing
// files are not an error: cleanup is best-effort (spec.md §4.J).
func RemoveFile(toolRoot, installedAt string) error {
	target, err := ResolveWithinRoot(toolRoot, installedAt)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
