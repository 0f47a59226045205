package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/lockfile"
)

func TestParseDependencyRef(t *testing.T) {
	cases := []struct {
		ref, kind, name string
	}{
		{"agent:helper", "agent", "helper"},
		{"official/agent:helper@v1.0.0", "agent", "helper"},
		{"snippet:utils@abcdef0", "snippet", "utils"},
	}
	for _, c := range cases {
		kind, name := parseDependencyRef(c.ref)
		require.Equal(t, c.kind, kind, c.ref)
		require.Equal(t, c.name, name, c.ref)
	}
}

func TestBuildTreeLinksParentsAndChildren(t *testing.T) {
	lf := lockfile.New()
	lf.Upsert(lockfile.LockedResource{
		Name: "helper", Kind: core.KindAgent, Path: "agents/helper.md", InstalledAt: "agents/helper.md",
		Checksum: "sha256:x", Dependencies: []string{"snippets:utils"},
	})
	lf.Upsert(lockfile.LockedResource{
		Name: "utils", Kind: core.KindSnippet, Path: "snippets/utils.md", InstalledAt: "snippets/utils.md",
		Checksum: "sha256:y",
	})

	nodes, roots := buildTree(lf)
	require.Len(t, roots, 1)
	require.Equal(t, "helper", roots[0].res.Name)
	require.Len(t, roots[0].children, 1)
	require.Equal(t, "utils", roots[0].children[0].res.Name)

	utils := nodes[nodeKey(core.KindSnippet, "utils")]
	require.Len(t, utils.parents, 1)
	require.Equal(t, "helper", utils.parents[0].res.Name)
}

func TestBuildTreeEveryResourceIsARootWithoutDependencies(t *testing.T) {
	lf := lockfile.New()
	lf.Upsert(lockfile.LockedResource{Name: "a", Kind: core.KindAgent, Path: "a.md", InstalledAt: "agents/a.md", Checksum: "sha256:a"})
	lf.Upsert(lockfile.LockedResource{Name: "b", Kind: core.KindAgent, Path: "b.md", InstalledAt: "agents/b.md", Checksum: "sha256:b"})

	_, roots := buildTree(lf)
	require.Len(t, roots, 2)
}

func TestLabelIncludesVersionWhenPresent(t *testing.T) {
	n := &treeNode{res: lockfile.LockedResource{Name: "helper", Kind: core.KindAgent, Version: "v1.0.0"}}
	require.Equal(t, "agent:helper@v1.0.0", n.label())

	bare := &treeNode{res: lockfile.LockedResource{Name: "helper", Kind: core.KindAgent}}
	require.Equal(t, "agent:helper", bare.label())
}
