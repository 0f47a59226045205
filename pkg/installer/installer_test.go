package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
)

func TestInstallFileWritesAndChecksums(t *testing.T) {
	root := t.TempDir()
	sum, err := InstallFile(root, "agents/helper.md", []byte("hello"), false)
	require.NoError(t, err)
	require.Len(t, sum, 64)

	data, err := os.ReadFile(filepath.Join(root, "agents", "helper.md"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestInstallFileExecutableBit(t *testing.T) {
	root := t.TempDir()
	_, err := InstallFile(root, "scripts/run.sh", []byte("#!/bin/sh\necho hi"), true)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "scripts", "run.sh"))
	require.NoError(t, err)
	require.True(t, info.Mode()&0o111 != 0)
}

func TestInstallFileRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	_, err := InstallFile(root, "../../etc/passwd", []byte("x"), false)
	require.Error(t, err)
	require.True(t, core.IsCode(err, core.CodePathEscape))
}

// TestInstallFileRejectsGitPathComponent mirrors the original implementation's
// skills.rs integration test: a dependency whose installed_at resolves to
// "skills/.git" must be rejected rather than writing (or merging) into a
// nested .git directory.
func TestInstallFileRejectsGitPathComponent(t *testing.T) {
	root := t.TempDir()
	_, err := InstallFile(root, "skills/.git", []byte("x"), false)
	require.Error(t, err)
	require.True(t, core.IsCode(err, core.CodePathEscape))

	_, statErr := os.Stat(filepath.Join(root, "skills", ".git"))
	require.True(t, os.IsNotExist(statErr), ".git path component should not exist")
}

func TestInstallFileRejectsGitPathComponentMidPath(t *testing.T) {
	root := t.TempDir()
	_, err := InstallFile(root, "agents/.git/config", []byte("x"), false)
	require.Error(t, err)
	require.True(t, core.IsCode(err, core.CodePathEscape))
}

func TestRemoveFileIdempotent(t *testing.T) {
	root := t.TempDir()
	_, err := InstallFile(root, "agents/helper.md", []byte("x"), false)
	require.NoError(t, err)
	require.NoError(t, RemoveFile(root, "agents/helper.md"))
	require.NoError(t, RemoveFile(root, "agents/helper.md")) // second call is a no-op
}

func TestInstallDirectoryComputesCompositeChecksumDeterministically(t *testing.T) {
	root := t.TempDir()
	entries := []DirEntry{
		{RelPath: "SKILL.md", Data: []byte("skill body")},
		{RelPath: "scripts/run.sh", Data: []byte("echo hi")},
	}
	sum1, files1, err := InstallDirectory(root, "skills/my-skill", entries, DefaultDirLimits())
	require.NoError(t, err)
	require.Len(t, files1, 2)

	reversed := []DirEntry{entries[1], entries[0]}
	sum2, _, err := InstallDirectory(root, "skills/my-skill", reversed, DefaultDirLimits())
	require.NoError(t, err)
	require.Equal(t, sum1, sum2, "checksum must not depend on input entry order")
}

func TestInstallDirectorySkipsDotfiles(t *testing.T) {
	root := t.TempDir()
	entries := []DirEntry{
		{RelPath: "SKILL.md", Data: []byte("body")},
		{RelPath: ".hidden", Data: []byte("secret")},
	}
	_, files, err := InstallDirectory(root, "skills/my-skill", entries, DefaultDirLimits())
	require.NoError(t, err)
	require.Len(t, files, 1)

	_, err = os.Stat(filepath.Join(root, "skills", "my-skill", ".hidden"))
	require.True(t, os.IsNotExist(err))
}

func TestInstallDirectoryEnforcesFileCountLimit(t *testing.T) {
	root := t.TempDir()
	entries := []DirEntry{{RelPath: "a"}, {RelPath: "b"}, {RelPath: "c"}}
	_, _, err := InstallDirectory(root, "skills/s", entries, DirLimits{MaxFileCount: 2})
	require.Error(t, err)
	require.True(t, core.IsCode(err, core.CodeFileCountLimit))
}

func TestInstallDirectoryEnforcesSizeLimit(t *testing.T) {
	root := t.TempDir()
	entries := []DirEntry{{RelPath: "a", Data: make([]byte, 100)}}
	_, _, err := InstallDirectory(root, "skills/s", entries, DirLimits{MaxTotalSize: 10})
	require.Error(t, err)
	require.True(t, core.IsCode(err, core.CodeSizeLimit))
}

func TestApplyAndRemoveMergeTarget(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, ".claude", "settings.local.json")

	require.NoError(t, ApplyMergeTarget(target, "my-hook", []byte(`{"command":"echo hi"}`)))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(data), "my-hook")

	require.NoError(t, RemoveMergeTargetKey(target, "my-hook"))
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	require.NotContains(t, string(data), "my-hook")
}

func TestApplyMergeTargetRejectsInvalidJSON(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "settings.json")
	err := ApplyMergeTarget(target, "alias", []byte("not json"))
	require.Error(t, err)
	require.True(t, core.IsCode(err, core.CodeMergeTargetBad))
}
