package lockfile

import (
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/agpm-project/agpm/pkg/core"
)

// inlineTable forces go-toml/v2 to render a map as a single-line `{ ... }`
// table rather than a `[table]`/`[[array]]` block, matching the
// `applied_patches`/`variant_inputs` inline-table convention of spec.md §3.
// go-toml/v2 defers to MarshalTOML for any type that implements it, writing
// the returned bytes verbatim into the surrounding document — so the inline
// form is built by marshaling each entry on its own line and splicing the
// lines into braces, rather than by a second templating pass.
type inlineTable map[string]any

func (t inlineTable) MarshalTOML() ([]byte, error) {
	if len(t) == 0 {
		return []byte("{}"), nil
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		line, err := toml.Marshal(map[string]any{k: t[k]})
		if err != nil {
			return nil, err
		}
		parts = append(parts, strings.TrimRight(string(line), "\n"))
	}
	return []byte("{ " + strings.Join(parts, ", ") + " }"), nil
}

type sourceDoc struct {
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	FetchedAt string `toml:"fetched_at,omitempty"`
}

type resourceDoc struct {
	Name            string      `toml:"name"`
	ManifestAlias   string      `toml:"manifest_alias,omitempty"`
	Source          string      `toml:"source,omitempty"`
	URL             string      `toml:"url,omitempty"`
	Tool            string      `toml:"tool,omitempty"`
	Path            string      `toml:"path"`
	Version         string      `toml:"version,omitempty"`
	ResolvedCommit  string      `toml:"resolved_commit,omitempty"`
	Checksum        string      `toml:"checksum"`
	ContextChecksum string      `toml:"context_checksum,omitempty"`
	InstalledAt     string      `toml:"installed_at"`
	Files           []string    `toml:"files,omitempty"`
	Dependencies    []string    `toml:"dependencies"`
	AppliedPatches  inlineTable `toml:"applied_patches"`
	Install         *bool       `toml:"install,omitempty"`
	VariantInputs   inlineTable `toml:"variant_inputs"`
}

type documentRoot struct {
	Version    int           `toml:"version"`
	Sources    []sourceDoc   `toml:"sources,omitempty"`
	Agents     []resourceDoc `toml:"agents,omitempty"`
	Snippets   []resourceDoc `toml:"snippets,omitempty"`
	Commands   []resourceDoc `toml:"commands,omitempty"`
	Scripts    []resourceDoc `toml:"scripts,omitempty"`
	Hooks      []resourceDoc `toml:"hooks,omitempty"`
	MCPServers []resourceDoc `toml:"mcp-servers,omitempty"`
	Skills     []resourceDoc `toml:"skills,omitempty"`
}

func toResourceDoc(r LockedResource) resourceDoc {
	var installPtr *bool
	if r.SkipInstall {
		v := false
		installPtr = &v
	}
	return resourceDoc{
		Name:            r.Name,
		ManifestAlias:   r.ManifestAlias,
		Source:          r.Source,
		URL:             r.URL,
		Tool:            r.Tool,
		Path:            r.Path,
		Version:         r.Version,
		ResolvedCommit:  r.ResolvedCommit,
		Checksum:        r.Checksum,
		ContextChecksum: r.ContextChecksum,
		InstalledAt:     r.InstalledAt,
		Files:           r.Files,
		Dependencies:    append([]string{}, r.Dependencies...),
		AppliedPatches:  inlineTable(r.AppliedPatches),
		Install:         installPtr,
		VariantInputs:   inlineTable(r.VariantInputs),
	}
}

func fromResourceDoc(d resourceDoc, kind core.Kind) LockedResource {
	skipInstall := d.Install != nil && !*d.Install
	variant := map[string]any(d.VariantInputs)
	return LockedResource{
		Name:            d.Name,
		ManifestAlias:   d.ManifestAlias,
		Source:          d.Source,
		URL:             d.URL,
		Tool:            d.Tool,
		Kind:            kind,
		VariantInputs:   variant,
		VariantHash:     core.VariantInputs(variant).Hash(),
		Path:            d.Path,
		InstalledAt:     d.InstalledAt,
		Files:           d.Files,
		Version:         d.Version,
		ResolvedCommit:  d.ResolvedCommit,
		Checksum:        d.Checksum,
		ContextChecksum: d.ContextChecksum,
		Dependencies:    d.Dependencies,
		AppliedPatches:  map[string]any(d.AppliedPatches),
		SkipInstall:     skipInstall,
	}
}

func toDocument(lf *LockFile) documentRoot {
	doc := documentRoot{Version: lf.Version}
	for _, s := range lf.Sources {
		doc.Sources = append(doc.Sources, sourceDoc{Name: s.Name, URL: s.URL, FetchedAt: s.FetchedAt})
	}
	assign := func(kind core.Kind) []resourceDoc {
		list := lf.Resources[kind]
		out := make([]resourceDoc, 0, len(list))
		for _, r := range list {
			out = append(out, toResourceDoc(r))
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

func fromDocument(doc documentRoot) *LockFile {
	lf := New()
	lf.Version = doc.Version
	for _, s := range doc.Sources {
		lf.Sources = append(lf.Sources, LockedSource{Name: s.Name, URL: s.URL, FetchedAt: s.FetchedAt})
	}
	load := func(kind core.Kind, docs []resourceDoc) {
		for _, d := range docs {
			lf.Resources[kind] = append(lf.Resources[kind], fromResourceDoc(d, kind))
		}
	}
	load(core.KindAgent, doc.Agents)
	load(core.KindSnippet, doc.Snippets)
	load(core.KindCommand, doc.Commands)
	load(core.KindScript, doc.Scripts)
	load(core.KindHook, doc.Hooks)
	load(core.KindMCPServer, doc.MCPServers)
	load(core.KindSkill, doc.Skills)
	return lf
}

// Marshal renders lf as the canonical agpm.lock TOML text (spec.md §3):
// sorted arrays, inline `applied_patches`/`variant_inputs` tables, a
// `dependencies` array present even when empty, trailing newline.
func Marshal(lf *LockFile) ([]byte, error) {
	cp := *lf
	cp.Resources = map[core.Kind][]LockedResource{}
	for k, v := range lf.Resources {
		cp.Resources[k] = append([]LockedResource{}, v...)
	}
	cp.Normalize()

	buf, err := toml.Marshal(toDocument(&cp))
	if err != nil {
		return nil, core.NewLockfileError(core.CodeOther, "encoding lockfile: %v", err)
	}
	if !strings.HasSuffix(string(buf), "\n") {
		buf = append(buf, '\n')
	}
	return buf, nil
}

// Unmarshal parses agpm.lock TOML text into a LockFile, rejecting a version
// newer than CurrentVersion (spec.md §3: "AGPM will refuse to load
// lockfiles with versions newer than it supports").
func Unmarshal(data []byte) (*LockFile, error) {
	var doc documentRoot
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, core.NewLockfileError(core.CodeCorruption, "parsing lockfile: %v", err)
	}
	if doc.Version > CurrentVersion {
		return nil, core.NewLockfileError(core.CodeVersionTooNew,
			"lockfile version %d is newer than the %d this build supports", doc.Version, CurrentVersion)
	}
	return fromDocument(doc), nil
}
