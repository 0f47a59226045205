package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/agpm-project/agpm/pkg/core"
)

// dependencyDoc is DependencySpec's on-disk shape. Save always writes the
// full table form (never the bare-path shorthand Parse also accepts), so
// round-tripping a manifest through Load/Save/Load is stable.
type dependencyDoc struct {
	Source       string         `toml:"source,omitempty"`
	Path         string         `toml:"path"`
	Version      string         `toml:"version,omitempty"`
	Branch       string         `toml:"branch,omitempty"`
	Rev          string         `toml:"rev,omitempty"`
	Tool         string         `toml:"tool,omitempty"`
	Target       string         `toml:"target,omitempty"`
	Flatten      bool           `toml:"flatten,omitempty"`
	Install      *bool          `toml:"install,omitempty"`
	TemplateVars map[string]any `toml:"template_vars,omitempty"`
}

func toDependencyDoc(d DependencySpec) dependencyDoc {
	return dependencyDoc{
		Source: d.Source, Path: d.Path, Version: d.Version, Branch: d.Branch, Rev: d.Rev,
		Tool: d.Tool, Target: d.Target, Flatten: d.Flatten, Install: d.Install, TemplateVars: d.TemplateVars,
	}
}

// manifestDoc is the on-disk shape Save writes, mirroring rawManifest but
// with every dependency written as a full dependencyDoc table; each kind's
// tables are held in a map keyed by alias.
type manifestDoc struct {
	Project ProjectConfig         `toml:"project,omitempty"`
	Sources map[string]string     `toml:"sources,omitempty"`
	Target  TargetConfig          `toml:"target,omitempty"`
	Tools   map[string]ToolConfig `toml:"tools,omitempty"`

	Agents     map[string]dependencyDoc `toml:"agents,omitempty"`
	Snippets   map[string]dependencyDoc `toml:"snippets,omitempty"`
	Commands   map[string]dependencyDoc `toml:"commands,omitempty"`
	Scripts    map[string]dependencyDoc `toml:"scripts,omitempty"`
	Hooks      map[string]dependencyDoc `toml:"hooks,omitempty"`
	MCPServers map[string]dependencyDoc `toml:"mcp-servers,omitempty"`
	Skills     map[string]dependencyDoc `toml:"skills,omitempty"`

	Patch map[string]map[string]map[string]any `toml:"patch,omitempty"`
}

func toManifestDoc(m *Manifest) manifestDoc {
	doc := manifestDoc{
		Project: m.Project,
		Sources: m.Sources,
		Target:  m.Target,
		Tools:   m.Tools,
	}

	sections := map[core.Kind]*map[string]dependencyDoc{
		core.KindAgent:     &doc.Agents,
		core.KindSnippet:   &doc.Snippets,
		core.KindCommand:   &doc.Commands,
		core.KindScript:    &doc.Scripts,
		core.KindHook:      &doc.Hooks,
		core.KindMCPServer: &doc.MCPServers,
		core.KindSkill:     &doc.Skills,
	}
	for kind, slot := range sections {
		aliases := m.Dependencies[kind]
		if len(aliases) == 0 {
			continue
		}
		converted := make(map[string]dependencyDoc, len(aliases))
		for alias, spec := range aliases {
			converted[alias] = toDependencyDoc(spec)
		}
		*slot = converted
	}

	if len(m.Patch) > 0 {
		doc.Patch = map[string]map[string]map[string]any{}
		for kind, aliases := range m.Patch {
			doc.Patch[kind.ManifestSection()] = aliases
		}
	}
	return doc
}

// Marshal renders m back to agpm.toml's on-disk form.
func Marshal(m *Manifest) ([]byte, error) {
	data, err := toml.Marshal(toManifestDoc(m))
	if err != nil {
		return nil, core.NewManifestError(core.CodeOther, "encoding manifest: %v", err)
	}
	return data, nil
}

// Save writes m to path atomically (tmp file + rename), at 0644, creating
// parent directories as needed.
func Save(path string, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewManifestError(core.CodeOther, "creating %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".agpm-manifest-tmp-*")
	if err != nil {
		return core.NewManifestError(core.CodeOther, "creating temp file in %s: %v", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.NewManifestError(core.CodeOther, "writing %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return core.NewManifestError(core.CodeOther, "closing %s: %v", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return core.NewManifestError(core.CodeOther, "chmod %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return core.NewManifestError(core.CodeOther, "renaming %s to %s: %v", tmpName, path, err)
	}
	return nil
}

// AddSource declares or overwrites a [sources] entry.
func (m *Manifest) AddSource(name, url string) {
	if m.Sources == nil {
		m.Sources = map[string]string{}
	}
	m.Sources[name] = url
}

// RemoveSource deletes a [sources] entry. The caller is responsible for
// checking no dependency still references it (spec.md §4.B "remove source"
// refuses when a dependency still references it, absent --force).
func (m *Manifest) RemoveSource(name string) {
	delete(m.Sources, name)
}

// SourceInUse reports whether any dependency, of any kind, references
// source name.
func (m *Manifest) SourceInUse(name string) []string {
	var users []string
	for _, entry := range m.AllDependencies() {
		if entry.Spec.Source == name {
			users = append(users, string(entry.Kind)+"."+entry.Alias)
		}
	}
	sort.Strings(users)
	return users
}

// AddDependency declares or overwrites a dependency entry under kind/alias.
func (m *Manifest) AddDependency(kind core.Kind, alias string, spec DependencySpec) {
	if m.Dependencies == nil {
		m.Dependencies = map[core.Kind]map[string]DependencySpec{}
	}
	if m.Dependencies[kind] == nil {
		m.Dependencies[kind] = map[string]DependencySpec{}
	}
	m.Dependencies[kind][alias] = spec
}

// RemoveDependency deletes a dependency entry, reporting whether it existed.
func (m *Manifest) RemoveDependency(kind core.Kind, alias string) bool {
	aliases := m.Dependencies[kind]
	if aliases == nil {
		return false
	}
	if _, ok := aliases[alias]; !ok {
		return false
	}
	delete(aliases, alias)
	if len(aliases) == 0 {
		delete(m.Dependencies, kind)
	}
	return true
}
