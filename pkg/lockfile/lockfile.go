// Package lockfile (de)serializes agpm.lock: the canonical, byte-stable
// record of every resolved resource, and the staleness diff against a
// current manifest (spec.md §4.I).
package lockfile

import (
	"sort"

	"github.com/agpm-project/agpm/pkg/core"
)

// CurrentVersion is the lockfile format version this package writes and the
// highest version it will load (spec.md §3 "loader refuses higher
// versions").
const CurrentVersion = 1

// LockedSource is one resolved source repository.
type LockedSource struct {
	Name      string
	URL       string
	FetchedAt string // RFC 3339; omitted for local sources
}

// LockedResource is one resolved, installed resource entry.
type LockedResource struct {
	// Identity.
	Name          string
	ManifestAlias string // original manifest key; empty when it equals Name
	Source        string
	URL           string
	Tool          string
	Kind          core.Kind
	VariantInputs map[string]any
	VariantHash   string

	// Location.
	Path        string
	InstalledAt string
	Files       []string // populated for directory (skill) resources

	// Version.
	Version        string
	ResolvedCommit string // empty for local resources

	// Integrity. Checksum carries the "sha256:<hex>" prefix spec.md §3 uses
	// in the on-disk format (distinguishes future checksum algorithms).
	Checksum        string
	ContextChecksum string // empty unless the resource went through templating

	// Semantics.
	Dependencies   []string // sorted "kind:name" / "source/kind:name@version" refs
	AppliedPatches map[string]any

	// SkipInstall is true for the `install = false` case (spec.md §4.H
	// "embedded, not installed"): resolved and tracked in the lockfile, but
	// never written to the project tree. The zero value is false, matching
	// the spec's own "install defaults to true absent the key" rule.
	SkipInstall bool
}

// ResourceId returns the identity key spec.md §3 defines for this entry.
func (r LockedResource) ResourceId() core.ResourceId {
	return core.ResourceId{
		Name:              r.Name,
		Source:            r.Source,
		Tool:              r.Tool,
		Kind:              r.Kind,
		VariantInputsHash: r.VariantHash,
	}
}

// LockFile is the full parsed/in-memory lockfile.
type LockFile struct {
	Version   int
	Sources   []LockedSource
	Resources map[core.Kind][]LockedResource
}

// New returns an empty lockfile at CurrentVersion.
func New() *LockFile {
	return &LockFile{
		Version:   CurrentVersion,
		Resources: map[core.Kind][]LockedResource{},
	}
}

// AllResources returns every resource across every kind, in kind-table
// order (spec.md §3's AllKinds order), for cleanup/staleness passes that
// don't care about kind.
func (lf *LockFile) AllResources() []LockedResource {
	var out []LockedResource
	for _, kind := range core.AllKinds {
		out = append(out, lf.Resources[kind]...)
	}
	return out
}

// Upsert adds or replaces the entry matching r's ResourceId.
func (lf *LockFile) Upsert(r LockedResource) {
	list := lf.Resources[r.Kind]
	id := r.ResourceId()
	for i, existing := range list {
		if existing.ResourceId().Equal(id) {
			list[i] = r
			lf.Resources[r.Kind] = list
			return
		}
	}
	lf.Resources[r.Kind] = append(list, r)
}

// Normalize sorts every array per spec.md §3's invariants: resources within
// a kind by (name, source, tool, variant_inputs_hash); dependency lists and
// applied-patch keys are assumed pre-sorted by their producers but are
// re-sorted here defensively so equivalent inputs always yield identical
// output.
func (lf *LockFile) Normalize() {
	sort.Slice(lf.Sources, func(i, j int) bool { return lf.Sources[i].Name < lf.Sources[j].Name })
	for kind, list := range lf.Resources {
		sorted := append([]LockedResource{}, list...)
		sort.Slice(sorted, func(i, j int) bool {
			return sortKey(sorted[i]) < sortKey(sorted[j])
		})
		for i := range sorted {
			deps := append([]string{}, sorted[i].Dependencies...)
			sort.Strings(deps)
			sorted[i].Dependencies = deps
		}
		lf.Resources[kind] = sorted
	}
}

func sortKey(r LockedResource) string {
	return r.Name + "\x00" + r.Source + "\x00" + r.Tool + "\x00" + r.VariantHash
}
