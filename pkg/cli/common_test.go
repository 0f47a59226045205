package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/constants"
	"github.com/agpm-project/agpm/pkg/core"
)

func TestResolveCacheRootHonorsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(constants.EnvCacheDir, dir)

	root, err := resolveCacheRoot()
	require.NoError(t, err)
	require.Equal(t, dir, root)
}

func TestResolveCacheRootFallsBackToHome(t *testing.T) {
	t.Setenv(constants.EnvCacheDir, "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	root, err := resolveCacheRoot()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, constants.DefaultCacheDirName), root)
}

func TestExitCodeForError(t *testing.T) {
	require.Equal(t, constants.ExitSuccess, exitCodeForError(nil))
	require.Equal(t, constants.ExitValidationFailure, exitCodeForError(os.ErrNotExist))
	require.Equal(t, constants.ExitConcurrentLockBusy, exitCodeForError(core.NewCacheError(core.CodeLockBusy, "locked")))
}

func TestProjectDirMatchesCwd(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	got, err := projectDir()
	require.NoError(t, err)
	// macOS temp dirs resolve through a symlink (/var -> /private/var);
	// compare the resolved form so this test is host-independent.
	wantResolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	require.Equal(t, wantResolved, gotResolved)
}
