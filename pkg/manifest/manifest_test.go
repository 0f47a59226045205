package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
)

const sampleManifest = `
[project]
name = "demo"

[sources]
official = "https://github.com/example/registry.git"

[target]
gitignore = true

[agents]
local-helper = "agents/helper.md"
remote-helper = { source = "official", path = "agents/*.md", version = "^1.0", tool = "claude-code" }

[snippets]
pinned = { source = "official", path = "snippets/common.md", rev = "abcdef01234567890123456789012345678901ab" }

[patch.agents.remote-helper]
description = "overridden description"
`

func TestParseBasic(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	require.Equal(t, "https://github.com/example/registry.git", m.Sources["official"])
	require.True(t, m.Target.Gitignore)

	local := m.Dependencies[core.KindAgent]["local-helper"]
	require.Equal(t, "agents/helper.md", local.Path)
	require.Empty(t, local.Source)

	remote := m.Dependencies[core.KindAgent]["remote-helper"]
	require.Equal(t, "official", remote.Source)
	require.Equal(t, "^1.0", remote.Version)
	require.True(t, remote.InstallOrDefault())

	patch := m.Patch[core.KindAgent]["remote-helper"]
	require.Equal(t, "overridden description", patch["description"])
}

func TestParseRejectsMultipleVersionSelectors(t *testing.T) {
	bad := `
[sources]
official = "https://example.com/repo.git"

[agents]
broken = { source = "official", path = "agents/a.md", version = "^1.0", branch = "main" }
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}

func TestParseRejectsUndeclaredSource(t *testing.T) {
	bad := `
[agents]
broken = { source = "missing", path = "agents/a.md", version = "^1.0" }
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}

func TestParseInstallFalse(t *testing.T) {
	doc := `
[sources]
official = "https://example.com/repo.git"

[snippets]
opt = { source = "official", path = "snippets/a.md", version = "^1.0", install = false }
`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.False(t, m.Dependencies[core.KindSnippet]["opt"].InstallOrDefault())
}

func TestAllDependenciesSortedAndComplete(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	entries := m.AllDependencies()
	require.Len(t, entries, 3)
	require.Equal(t, "local-helper", entries[0].Alias)
	require.Equal(t, "remote-helper", entries[1].Alias)
}

func TestDiscoverFindsManifestInParent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("[sources]\n"), 0644))
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := Discover(nested)
	require.NoError(t, err)
	require.Equal(t, root, found)
}

func TestDiscoverMissingIsError(t *testing.T) {
	root := t.TempDir()
	_, err := Discover(root)
	require.Error(t, err)
}

func TestLoadPrivateMissingFileIsEmpty(t *testing.T) {
	pm, err := LoadPrivate(filepath.Join(t.TempDir(), PrivateFileName))
	require.NoError(t, err)
	require.Empty(t, pm.Patch)
}

func TestParsePrivatePatch(t *testing.T) {
	pm, err := ParsePrivate([]byte("[patch.agents.remote-helper]\napi_key = \"secret\"\n"))
	require.NoError(t, err)
	require.Equal(t, "secret", pm.Patch[core.KindAgent]["remote-helper"]["api_key"])
}
