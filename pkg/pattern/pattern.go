// Package pattern expands a manifest path expression (possibly a glob)
// against the tree at a resolved commit, producing one expansion per match
// with a canonical resource name (spec.md §4.D).
package pattern

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/gitdriver"
)

// IsWildcard reports whether expr contains glob metacharacters.
func IsWildcard(expr string) bool {
	return strings.ContainsAny(expr, "*?[")
}

// Expansion is one match produced by Expand: a path within the source tree
// plus the canonical name derived from it.
type Expansion struct {
	Path          string // path within the repository tree
	CanonicalName string // "<source_prefix>/<relpath-without-extension>", lower-cased separators
}

// Expand resolves expr against the tree entries of a commit (obtained via
// `git ls-tree`). sourcePrefix is the source's manifest name, prefixed onto
// every canonical name (spec.md §4.D).
func Expand(entries []gitdriver.LsTreeEntry, sourcePrefix, expr string) ([]Expansion, error) {
	if !IsWildcard(expr) {
		for _, e := range entries {
			if e.Path == expr {
				return []Expansion{{Path: e.Path, CanonicalName: canonicalName(sourcePrefix, e.Path)}}, nil
			}
		}
		return nil, core.NewResolutionError(core.CodeResourceNotFound, "path %q not found", expr)
	}

	var matches []Expansion
	for _, e := range entries {
		ok, err := doublestar.Match(expr, e.Path)
		if err != nil {
			return nil, core.NewResolutionError(core.CodePatternNoMatch, "invalid glob %q: %v", expr, err)
		}
		if ok {
			matches = append(matches, Expansion{Path: e.Path, CanonicalName: canonicalName(sourcePrefix, e.Path)})
		}
	}
	if len(matches) == 0 {
		return nil, core.NewResolutionError(core.CodePatternNoMatch, "glob %q matched no files", expr)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })
	return matches, nil
}

// canonicalName derives "<source_prefix>/<relpath-without-extension>",
// forcing lower-cased "/" separators.
func canonicalName(sourcePrefix, relPath string) string {
	ext := path.Ext(relPath)
	withoutExt := strings.TrimSuffix(relPath, ext)
	name := strings.ToLower(strings.ReplaceAll(withoutExt, "\\", "/"))
	if sourcePrefix == "" {
		return name
	}
	return sourcePrefix + "/" + name
}
