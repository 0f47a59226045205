// Package discovery walks the dependency graph breadth-first from manifest
// roots, pulling in transitive dependencies declared in resource frontmatter
// and detecting cycles (spec.md §4.E).
package discovery

import (
	"context"
	"sort"
	"strings"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/frontmatter"
	"github.com/agpm-project/agpm/pkg/manifest"
)

// WorkItem is one pending dependency to resolve: either a manifest root or a
// transitive dependency discovered in another resource's frontmatter.
type WorkItem struct {
	Kind   core.Kind
	Alias  string
	Spec   frontmatter.DependencySpec
	Parent *core.ResourceId // nil for manifest roots
	Chain  []core.ResourceId
}

// Resolved is one fully expanded resource: its identity, where it lives in
// the dependency tree, and (for file resources that carry frontmatter) its
// declared nested dependencies and template variables.
type Resolved struct {
	ID       core.ResourceId
	Kind     core.Kind
	Alias    string
	Spec     frontmatter.DependencySpec
	Declared *frontmatter.Declared // nil for resources with no parseable frontmatter
}

// Expander resolves one dependency spec (a manifest alias or a discovered
// transitive reference) against Git/local sources, applying pattern
// expansion and variant hashing, and returns every concrete resource it
// produced. A glob spec therefore yields one Resolved per match.
//
// Implemented by pkg/pipeline, composing pkg/sourcecache, pkg/resolver,
// pkg/pattern and pkg/frontmatter; kept as an interface here so the BFS
// walk and cycle detection can be tested against a fake.
type Expander interface {
	Expand(ctx context.Context, item WorkItem) ([]Resolved, error)
}

// Result is the full BFS output: every resolved resource, plus the edges
// used to populate LockedResource.Dependencies.
type Result struct {
	Resources []Resolved
	Edges     map[core.ResourceId][]core.ResourceId
}

// Discoverer runs the breadth-first transitive-dependency walk described in
// spec.md §4.E.
type Discoverer struct {
	Expander Expander
}

func New(e Expander) *Discoverer {
	return &Discoverer{Expander: e}
}

// Run seeds the work queue from m's manifest-declared dependencies and walks
// breadth-first until the queue is empty. A resolved resource's own
// dependencies are queued in kind-table order (core.AllKinds) and, within a
// kind, by alias name; the order they are written in its frontmatter is not
// kept.
func (d *Discoverer) Run(ctx context.Context, m *manifest.Manifest) (*Result, error) {
	var queue []WorkItem
	for _, entry := range m.AllDependencies() {
		queue = append(queue, WorkItem{
			Kind:  entry.Kind,
			Alias: entry.Alias,
			Spec:  manifestSpecToFrontmatter(entry.Spec),
		})
	}

	resolved := map[core.ResourceId]Resolved{}
	var order []core.ResourceId
	edges := map[core.ResourceId][]core.ResourceId{}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		expansions, err := d.Expander.Expand(ctx, item)
		if err != nil {
			return nil, err
		}

		for _, r := range expansions {
			// Re-entry onto the current path (an ancestor of this work item)
			// is a genuine cycle; re-entry onto an already fully resolved ID
			// elsewhere in the graph is just a shared dependency.
			if containsID(item.Chain, r.ID) {
				return nil, core.NewResolutionError(core.CodeDependencyCycle,
					"dependency cycle detected: %s", formatChain(append(item.Chain, r.ID)))
			}
			if _, already := resolved[r.ID]; already {
				if item.Parent != nil {
					edges[*item.Parent] = appendUnique(edges[*item.Parent], r.ID)
				}
				continue
			}

			resolved[r.ID] = r
			order = append(order, r.ID)
			if item.Parent != nil {
				edges[*item.Parent] = appendUnique(edges[*item.Parent], r.ID)
			}

			if r.Declared == nil {
				continue
			}
			chain := append(append([]core.ResourceId{}, item.Chain...), r.ID)
			for _, kind := range core.AllKinds {
				aliases := r.Declared.Dependencies[kind.ManifestSection()]
				for _, alias := range sortedKeys(aliases) {
					spec := aliases[alias]
					if spec.Source == "" {
						spec.Source = r.ID.Source
					}
					id := r.ID
					queue = append(queue, WorkItem{
						Kind:   kind,
						Alias:  alias,
						Spec:   spec,
						Parent: &id,
						Chain:  chain,
					})
				}
			}
		}
	}

	out := make([]Resolved, 0, len(order))
	for _, id := range order {
		out = append(out, resolved[id])
	}
	return &Result{Resources: out, Edges: edges}, nil
}

func manifestSpecToFrontmatter(s manifest.DependencySpec) frontmatter.DependencySpec {
	return frontmatter.DependencySpec{
		Source:       s.Source,
		Path:         s.Path,
		Version:      s.Version,
		Branch:       s.Branch,
		Rev:          s.Rev,
		Tool:         s.Tool,
		Target:       s.Target,
		Flatten:      s.Flatten,
		Install:      s.Install,
		TemplateVars: s.TemplateVars,
	}
}

func containsID(chain []core.ResourceId, id core.ResourceId) bool {
	for _, c := range chain {
		if c.Equal(id) {
			return true
		}
	}
	return false
}

func appendUnique(ids []core.ResourceId, id core.ResourceId) []core.ResourceId {
	for _, existing := range ids {
		if existing.Equal(id) {
			return ids
		}
	}
	return append(ids, id)
}

func formatChain(chain []core.ResourceId) string {
	parts := make([]string, len(chain))
	for i, id := range chain {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}

func sortedKeys(m map[string]frontmatter.DependencySpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
