package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/frontmatter"
	"github.com/agpm-project/agpm/pkg/manifest"
)

// fakeExpander resolves a work item by looking up its alias in a canned
// table, simulating what pkg/pipeline's real expander does against Git.
type fakeExpander struct {
	table map[string]Resolved
}

func (f *fakeExpander) Expand(_ context.Context, item WorkItem) ([]Resolved, error) {
	r, ok := f.table[item.Alias]
	if !ok {
		return nil, core.NewResolutionError(core.CodeResourceNotFound, "no such alias %q", item.Alias)
	}
	return []Resolved{r}, nil
}

func id(kind core.Kind, name string) core.ResourceId {
	return core.ResourceId{Kind: kind, Name: name}
}

func TestRunWalksTransitiveDependencies(t *testing.T) {
	m, err := manifest.Parse([]byte(`
[agents]
root = "agents/root.md"
`))
	require.NoError(t, err)

	table := map[string]Resolved{
		"root": {
			ID:    id(core.KindAgent, "root"),
			Kind:  core.KindAgent,
			Alias: "root",
			Declared: &frontmatter.Declared{
				Dependencies: map[string]map[string]frontmatter.DependencySpec{
					"snippets": {
						"common": frontmatter.DependencySpec{Path: "snippets/common.md"},
					},
				},
			},
		},
		"common": {
			ID:    id(core.KindSnippet, "common"),
			Kind:  core.KindSnippet,
			Alias: "common",
		},
	}

	d := New(&fakeExpander{table: table})
	result, err := d.Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, result.Resources, 2)

	rootID := id(core.KindAgent, "root")
	commonID := id(core.KindSnippet, "common")
	require.Contains(t, result.Edges[rootID], commonID)
}

func TestRunDedupesRepeatedDependency(t *testing.T) {
	m, err := manifest.Parse([]byte(`
[agents]
a = "agents/a.md"
b = "agents/b.md"
`))
	require.NoError(t, err)

	shared := frontmatter.DependencySpec{Path: "snippets/shared.md"}
	table := map[string]Resolved{
		"a": {
			ID:   id(core.KindAgent, "a"),
			Kind: core.KindAgent,
			Declared: &frontmatter.Declared{
				Dependencies: map[string]map[string]frontmatter.DependencySpec{
					"snippets": {"shared": shared},
				},
			},
		},
		"b": {
			ID:   id(core.KindAgent, "b"),
			Kind: core.KindAgent,
			Declared: &frontmatter.Declared{
				Dependencies: map[string]map[string]frontmatter.DependencySpec{
					"snippets": {"shared": shared},
				},
			},
		},
		"shared": {
			ID:   id(core.KindSnippet, "shared"),
			Kind: core.KindSnippet,
		},
	}

	d := New(&fakeExpander{table: table})
	result, err := d.Run(context.Background(), m)
	require.NoError(t, err)

	count := 0
	for _, r := range result.Resources {
		if r.ID.Equal(id(core.KindSnippet, "shared")) {
			count++
		}
	}
	require.Equal(t, 1, count, "shared dependency should resolve to a single lockfile entry")
}

func TestRunDetectsCycle(t *testing.T) {
	m, err := manifest.Parse([]byte(`
[agents]
a = "agents/a.md"
`))
	require.NoError(t, err)

	aID := id(core.KindAgent, "a")
	bID := id(core.KindAgent, "b")

	table := map[string]Resolved{
		"a": {
			ID:   aID,
			Kind: core.KindAgent,
			Declared: &frontmatter.Declared{
				Dependencies: map[string]map[string]frontmatter.DependencySpec{
					"agents": {"b": {Path: "agents/b.md"}},
				},
			},
		},
		"b": {
			ID:   bID,
			Kind: core.KindAgent,
			Declared: &frontmatter.Declared{
				Dependencies: map[string]map[string]frontmatter.DependencySpec{
					"agents": {"a": {Path: "agents/a.md"}},
				},
			},
		},
	}

	d := New(&fakeExpander{table: table})
	_, err = d.Run(context.Background(), m)
	require.Error(t, err)
	require.True(t, core.IsCode(err, core.CodeDependencyCycle))
}

func TestRunUnknownAliasSurfacesExpanderError(t *testing.T) {
	m, err := manifest.Parse([]byte(`
[agents]
missing = "agents/missing.md"
`))
	require.NoError(t, err)

	d := New(&fakeExpander{table: map[string]Resolved{}})
	_, err = d.Run(context.Background(), m)
	require.Error(t, err)
}
