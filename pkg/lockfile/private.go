package lockfile

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/agpm-project/agpm/pkg/core"
)

// PrivateFileName is agpm.private.lock's fixed name: gitignored by
// convention, holding only the patches an individual contributor applies
// via agpm.private.toml (spec.md §3 "private patch lifecycle").
const PrivateFileName = "agpm.private.lock"

// PrivateLockVersion is the format version of agpm.private.lock, tracked
// independently of agpm.lock's own CurrentVersion.
const PrivateLockVersion = 1

// PrivateResource records one resource's private-patch overlay.
type PrivateResource struct {
	Name           string
	AppliedPatches map[string]any
}

// PrivateLockFile mirrors agpm.lock's array-of-tables shape but carries
// only resources that have at least one private patch applied; it is
// re-derived on every install and deleted entirely once empty.
type PrivateLockFile struct {
	Version   int
	Resources map[core.Kind][]PrivateResource
}

// NewPrivate returns an empty private lockfile at PrivateLockVersion.
func NewPrivate() *PrivateLockFile {
	return &PrivateLockFile{Version: PrivateLockVersion, Resources: map[core.Kind][]PrivateResource{}}
}

// IsEmpty reports whether pl has no private-patched resources left, the
// caller's cue to delete agpm.private.lock rather than write it.
func (pl *PrivateLockFile) IsEmpty() bool {
	for _, list := range pl.Resources {
		if len(list) > 0 {
			return false
		}
	}
	return true
}

// Add records alias's private patches under kind, replacing any prior entry
// for the same alias. Passing an empty patch map removes the entry.
func (pl *PrivateLockFile) Add(kind core.Kind, alias string, patches map[string]any) {
	list := pl.Resources[kind]
	filtered := list[:0:0]
	for _, r := range list {
		if r.Name != alias {
			filtered = append(filtered, r)
		}
	}
	if len(patches) > 0 {
		filtered = append(filtered, PrivateResource{Name: alias, AppliedPatches: patches})
	}
	pl.Resources[kind] = filtered
}

type privateResourceDoc struct {
	Name           string      `toml:"name"`
	AppliedPatches inlineTable `toml:"applied_patches"`
}

type privateDocumentRoot struct {
	Version    int                  `toml:"version"`
	Agents     []privateResourceDoc `toml:"agents,omitempty"`
	Snippets   []privateResourceDoc `toml:"snippets,omitempty"`
	Commands   []privateResourceDoc `toml:"commands,omitempty"`
	Scripts    []privateResourceDoc `toml:"scripts,omitempty"`
	Hooks      []privateResourceDoc `toml:"hooks,omitempty"`
	MCPServers []privateResourceDoc `toml:"mcp-servers,omitempty"`
	Skills     []privateResourceDoc `toml:"skills,omitempty"`
}

func toPrivateDocument(pl *PrivateLockFile) privateDocumentRoot {
	doc := privateDocumentRoot{Version: pl.Version}
	assign := func(kind core.Kind) []privateResourceDoc {
		list := append([]PrivateResource{}, pl.Resources[kind]...)
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		out := make([]privateResourceDoc, 0, len(list))
		for _, r := range list {
			out = append(out, privateResourceDoc{Name: r.Name, AppliedPatches: inlineTable(r.AppliedPatches)})
		}
		return out
	}
	doc.Agents = assign(core.KindAgent)
	doc.Snippets = assign(core.KindSnippet)
	doc.Commands = assign(core.KindCommand)
	doc.Scripts = assign(core.KindScript)
	doc.Hooks = assign(core.KindHook)
	doc.MCPServers = assign(core.KindMCPServer)
	doc.Skills = assign(core.KindSkill)
	return doc
}

func fromPrivateDocument(doc privateDocumentRoot) *PrivateLockFile {
	pl := NewPrivate()
	pl.Version = doc.Version
	load := func(kind core.Kind, docs []privateResourceDoc) {
		for _, d := range docs {
			pl.Resources[kind] = append(pl.Resources[kind], PrivateResource{Name: d.Name, AppliedPatches: map[string]any(d.AppliedPatches)})
		}
	}
	load(core.KindAgent, doc.Agents)
	load(core.KindSnippet, doc.Snippets)
	load(core.KindCommand, doc.Commands)
	load(core.KindScript, doc.Scripts)
	load(core.KindHook, doc.Hooks)
	load(core.KindMCPServer, doc.MCPServers)
	load(core.KindSkill, doc.Skills)
	return pl
}

// LoadPrivate reads agpm.private.lock at path. A missing file is not an
// error: it returns a fresh empty PrivateLockFile.
func LoadPrivate(path string) (*PrivateLockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewPrivate(), nil
		}
		return nil, core.NewLockfileError(core.CodeOther, "reading %s: %v", path, err)
	}
	var doc privateDocumentRoot
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, core.NewLockfileError(core.CodeCorruption, "parsing %s: %v", path, err)
	}
	return fromPrivateDocument(doc), nil
}

// SavePrivate writes pl to path, or removes path entirely when pl is empty
// (spec.md §3: an install that sheds its last private patch deletes the
// file rather than leaving behind an empty one).
func SavePrivate(path string, pl *PrivateLockFile) error {
	if pl.IsEmpty() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return core.NewLockfileError(core.CodeOther, "removing %s: %v", path, err)
		}
		return nil
	}

	data, err := toml.Marshal(toPrivateDocument(pl))
	if err != nil {
		return core.NewLockfileError(core.CodeOther, "encoding %s: %v", path, err)
	}
	if data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewLockfileError(core.CodeOther, "creating %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".agpm-private-lock-tmp-*")
	if err != nil {
		return core.NewLockfileError(core.CodeOther, "creating temp file in %s: %v", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.NewLockfileError(core.CodeOther, "writing %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return core.NewLockfileError(core.CodeOther, "closing %s: %v", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return core.NewLockfileError(core.CodeOther, "chmod %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return core.NewLockfileError(core.CodeOther, "renaming %s to %s: %v", tmpName, path, err)
	}
	return nil
}
