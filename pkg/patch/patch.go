// Package patch merges project and private frontmatter patches into a
// resolved resource's frontmatter before rendering (spec.md §4.G).
package patch

import "sort"

// Result is the outcome of applying project/private patch layers to a
// resource's original frontmatter.
type Result struct {
	// Frontmatter is the effective frontmatter: original overlaid with the
	// project patch, then the private patch (later layers win per key).
	Frontmatter map[string]any
	// ProjectKeys is the sorted list of keys the project patch touched,
	// recorded on the main lockfile entry's applied_patches (spec.md §4.G.3
	// "record project patches only on the lockfile entry").
	ProjectKeys []string
	// PrivateKeys is the sorted list of keys the private patch touched,
	// recorded only in the private lockfile, never in agpm.lock.
	PrivateKeys []string
}

// Apply computes original ⊕ projectPatch ⊕ privatePatch, the effective
// frontmatter of spec.md §4.G step 1. nil patches are treated as empty.
func Apply(original, projectPatch, privatePatch map[string]any) Result {
	effective := make(map[string]any, len(original)+len(projectPatch)+len(privatePatch))
	for k, v := range original {
		effective[k] = v
	}
	for k, v := range projectPatch {
		effective[k] = v
	}
	for k, v := range privatePatch {
		effective[k] = v
	}
	return Result{
		Frontmatter: effective,
		ProjectKeys: sortedKeys(projectPatch),
		PrivateKeys: sortedKeys(privatePatch),
	}
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AppliedPatchValues extracts the subset of m's keys named by keys, for
// serializing applied_patches as an inline table on the lockfile entry
// (spec.md §3 "applied_patches (sorted map of project-only patches)").
func AppliedPatchValues(m map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}
