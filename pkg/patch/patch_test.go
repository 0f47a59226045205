package patch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/manifest"
)

func TestApplyLayersOverrideInOrder(t *testing.T) {
	original := map[string]any{"description": "base", "model": "sonnet"}
	project := map[string]any{"description": "project override"}
	private := map[string]any{"model": "opus"}

	res := Apply(original, project, private)
	require.Equal(t, "project override", res.Frontmatter["description"])
	require.Equal(t, "opus", res.Frontmatter["model"])
	require.Equal(t, []string{"description"}, res.ProjectKeys)
	require.Equal(t, []string{"model"}, res.PrivateKeys)
}

func TestApplyPrivateWinsOverProjectOnSameKey(t *testing.T) {
	original := map[string]any{"model": "sonnet"}
	project := map[string]any{"model": "opus"}
	private := map[string]any{"model": "haiku"}

	res := Apply(original, project, private)
	require.Equal(t, "haiku", res.Frontmatter["model"])
}

func TestApplyNilPatchesIsNoOp(t *testing.T) {
	original := map[string]any{"description": "base"}
	res := Apply(original, nil, nil)
	require.Equal(t, original, res.Frontmatter)
	require.Empty(t, res.ProjectKeys)
	require.Empty(t, res.PrivateKeys)
}

func TestAppliedPatchValuesExtractsOnlyTouchedKeys(t *testing.T) {
	full := map[string]any{"description": "x", "model": "y", "untouched": "z"}
	out := AppliedPatchValues(full, []string{"description", "model"})
	require.Equal(t, map[string]any{"description": "x", "model": "y"}, out)
}

func TestForAliasReadsBothManifests(t *testing.T) {
	m, err := manifest.Parse([]byte(`
[sources]
official = "https://example.com/repo.git"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "^1.0" }

[patch.agents.helper]
description = "project description"
`))
	require.NoError(t, err)

	pm, err := manifest.ParsePrivate([]byte(`
[patch.agents.helper]
api_key = "secret"
`))
	require.NoError(t, err)

	res := ForAlias(m, pm, core.KindAgent, "helper", map[string]any{"description": "original"})
	require.Equal(t, "project description", res.Frontmatter["description"])
	require.Equal(t, "secret", res.Frontmatter["api_key"])
	require.Equal(t, []string{"description"}, res.ProjectKeys)
	require.Equal(t, []string{"api_key"}, res.PrivateKeys)
}
