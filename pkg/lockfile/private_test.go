package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
)

func TestPrivateLockFileAddAndIsEmpty(t *testing.T) {
	pl := NewPrivate()
	require.True(t, pl.IsEmpty())

	pl.Add(core.KindAgent, "helper", map[string]any{"model": "haiku"})
	require.False(t, pl.IsEmpty())

	pl.Add(core.KindAgent, "helper", nil)
	require.True(t, pl.IsEmpty())
}

func TestSavePrivateWritesAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PrivateFileName)

	pl := NewPrivate()
	pl.Add(core.KindAgent, "helper", map[string]any{"model": "haiku"})
	require.NoError(t, SavePrivate(path, pl))

	got, err := LoadPrivate(path)
	require.NoError(t, err)
	require.Len(t, got.Resources[core.KindAgent], 1)
	require.Equal(t, "helper", got.Resources[core.KindAgent][0].Name)
	require.Equal(t, map[string]any{"model": "haiku"}, got.Resources[core.KindAgent][0].AppliedPatches)
}

func TestSavePrivateDeletesFileWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PrivateFileName)

	pl := NewPrivate()
	pl.Add(core.KindAgent, "helper", map[string]any{"model": "haiku"})
	require.NoError(t, SavePrivate(path, pl))

	pl.Add(core.KindAgent, "helper", nil)
	require.NoError(t, SavePrivate(path, pl))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestLoadPrivateMissingFileIsEmpty(t *testing.T) {
	got, err := LoadPrivate(filepath.Join(t.TempDir(), PrivateFileName))
	require.NoError(t, err)
	require.True(t, got.IsEmpty())
}
