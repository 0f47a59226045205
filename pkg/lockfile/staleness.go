package lockfile

import (
	"fmt"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/manifest"
)

// StalenessKind names why one manifest dependency disagrees with the
// lockfile entry that claims to satisfy it.
type StalenessKind string

const (
	StalenessMissingDependency StalenessKind = "MissingDependency"
	StalenessVersionChanged    StalenessKind = "VersionChanged"
	StalenessPathChanged       StalenessKind = "PathChanged"
	StalenessSourceURLChanged  StalenessKind = "SourceUrlChanged"
	StalenessDuplicateEntries  StalenessKind = "DuplicateEntries"
	StalenessToolChanged       StalenessKind = "ToolChanged"
)

// StalenessReason explains one disagreement found by Diagnose, in the same
// shape a caller prints back to the user (spec.md §4.I "freshness check").
type StalenessReason struct {
	Kind         StalenessKind
	Name         string
	ResourceKind core.Kind
	Old          string
	New          string
	Count        int
}

// Error renders the human-readable message for r, matching each
// StalenessKind's fixed template.
func (r StalenessReason) Error() string {
	switch r.Kind {
	case StalenessMissingDependency:
		return fmt.Sprintf("dependency %q (%s) is in manifest but missing from lockfile", r.Name, r.ResourceKind)
	case StalenessVersionChanged:
		return fmt.Sprintf("dependency %q (%s) version changed from %q to %q", r.Name, r.ResourceKind, r.Old, r.New)
	case StalenessPathChanged:
		return fmt.Sprintf("dependency %q (%s) path changed from %q to %q", r.Name, r.ResourceKind, r.Old, r.New)
	case StalenessSourceURLChanged:
		return fmt.Sprintf("source repository %q URL changed from %q to %q", r.Name, r.Old, r.New)
	case StalenessDuplicateEntries:
		return fmt.Sprintf("found %d duplicate entries for dependency %q (%s)", r.Count, r.Name, r.ResourceKind)
	case StalenessToolChanged:
		return fmt.Sprintf("dependency %q (%s) tool changed from %q to %q", r.Name, r.ResourceKind, r.Old, r.New)
	default:
		return fmt.Sprintf("dependency %q (%s) is stale", r.Name, r.ResourceKind)
	}
}

// Diagnose compares every dependency m declares against lf, returning one
// StalenessReason per disagreement found. An empty result means lf fully
// satisfies m and `agpm install --frozen`/`validate` may proceed without
// re-resolving. Source URL drift is checked over every lockfile source,
// independently of manifest dependencies. Duplicate lockfile entries are
// reported only for aliases m declares; the first matching entry is the one
// compared for version, path and tool drift.
func Diagnose(m *manifest.Manifest, lf *LockFile) []StalenessReason {
	var reasons []StalenessReason
	if lf == nil {
		for _, dep := range m.AllDependencies() {
			reasons = append(reasons, StalenessReason{Kind: StalenessMissingDependency, Name: dep.Alias, ResourceKind: dep.Kind})
		}
		return reasons
	}

	byAlias := map[string][]LockedResource{}
	for _, r := range lf.AllResources() {
		key := r.Kind.String() + "\x00" + aliasOf(r)
		byAlias[key] = append(byAlias[key], r)
	}

	for _, dep := range m.AllDependencies() {
		key := dep.Kind.String() + "\x00" + dep.Alias
		matches := byAlias[key]
		if len(matches) == 0 {
			reasons = append(reasons, StalenessReason{Kind: StalenessMissingDependency, Name: dep.Alias, ResourceKind: dep.Kind})
			continue
		}
		if len(matches) > 1 {
			reasons = append(reasons, StalenessReason{Kind: StalenessDuplicateEntries, Name: dep.Alias, ResourceKind: dep.Kind, Count: len(matches)})
		}
		locked := matches[0]

		wantVersion := dep.Spec.Version
		if wantVersion == "" {
			wantVersion = dep.Spec.Branch
		}
		if wantVersion == "" {
			wantVersion = dep.Spec.Rev
		}
		if wantVersion != "" && locked.Version != "" && wantVersion != locked.Version {
			reasons = append(reasons, StalenessReason{
				Kind: StalenessVersionChanged, Name: dep.Alias, ResourceKind: dep.Kind,
				Old: locked.Version, New: wantVersion,
			})
		}
		if dep.Spec.Path != "" && locked.Path != "" && dep.Spec.Path != locked.Path {
			reasons = append(reasons, StalenessReason{
				Kind: StalenessPathChanged, Name: dep.Alias, ResourceKind: dep.Kind,
				Old: locked.Path, New: dep.Spec.Path,
			})
		}
		wantTool := dep.Spec.Tool
		if wantTool == "" {
			wantTool = dep.Kind.DefaultTool()
		}
		if locked.Tool != "" && wantTool != locked.Tool {
			reasons = append(reasons, StalenessReason{
				Kind: StalenessToolChanged, Name: dep.Alias, ResourceKind: dep.Kind,
				Old: locked.Tool, New: wantTool,
			})
		}
	}

	for _, src := range lf.Sources {
		manifestSrc, ok := m.Sources[src.Name]
		if ok && manifestSrc != src.URL {
			reasons = append(reasons, StalenessReason{
				Kind: StalenessSourceURLChanged, Name: src.Name,
				Old: src.URL, New: manifestSrc,
			})
		}
	}

	return reasons
}

// aliasOf returns the key a lockfile entry is found under when matching
// back to a manifest dependency: its manifest_alias when the entry came
// from pattern expansion, else its own name.
func aliasOf(r LockedResource) string {
	if r.ManifestAlias != "" {
		return r.ManifestAlias
	}
	return r.Name
}
