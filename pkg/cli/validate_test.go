package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/lockfile"
	"github.com/agpm-project/agpm/pkg/manifest"
)

func TestValidateStructuralCheckPasses(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, minimalManifest)
	chdir(t, dir)

	cmd := NewValidateCommand()
	cmd.SetArgs([]string{"--quiet"})
	require.NoError(t, cmd.Execute())
}

func TestValidateCheckLockReportsMissingDependency(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"

[sources]
official = "https://github.com/example/registry.git"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "^1.0" }
`)
	lf := lockfile.New()
	data, err := lockfile.Marshal(lf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockfile.FileName), data, 0o644))
	chdir(t, dir)

	cmd := NewValidateCommand()
	cmd.SetArgs([]string{"--check-lock", "--format", "json"})
	// --check-lock finds a staleness warning (the lockfile has no
	// "helper" entry yet); the command still exits 0 since warnings
	// alone don't fail validation without --strict.
	require.NoError(t, cmd.Execute())
}

// TestValidateFailsOnStructurallyInvalidManifest checks the manifest-level
// validation that `agpm validate` fails on (version and branch both set);
// the command itself is not executed here.
func TestValidateFailsOnStructurallyInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"

[sources]
official = "https://github.com/example/registry.git"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "^1.0", branch = "main" }
`)
	chdir(t, dir)

	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	require.NoError(t, err)
	require.Error(t, m.Validate())
}
