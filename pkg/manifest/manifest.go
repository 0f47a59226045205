// Package manifest loads and validates agpm.toml, the editable dependency
// declaration that the resolution pipeline consumes.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/agpm-project/agpm/pkg/core"
)

// DependencySpec is one entry under a kind table ([agents], [snippets], ...).
// Mirrors pkg/frontmatter.DependencySpec's shape since both speak the same
// dependency-spec schema (spec.md §3): a manifest alias and a discovered
// transitive dependency are structurally identical.
type DependencySpec struct {
	Source       string         `toml:"source,omitempty"`
	Path         string         `toml:"path,omitempty"`
	Version      string         `toml:"version,omitempty"`
	Branch       string         `toml:"branch,omitempty"`
	Rev          string         `toml:"rev,omitempty"`
	Tool         string         `toml:"tool,omitempty"`
	Target       string         `toml:"target,omitempty"`
	Flatten      bool           `toml:"flatten,omitempty"`
	Install      *bool          `toml:"install,omitempty"`
	TemplateVars map[string]any `toml:"template_vars,omitempty"`
}

// InstallOrDefault reports whether the dependency should be written to disk;
// the default is true when the manifest author omits the key.
func (d DependencySpec) InstallOrDefault() bool {
	if d.Install == nil {
		return true
	}
	return *d.Install
}

// rawDependencySpec lets a manifest alias be either a bare path string
// (shorthand for a local file dependency) or a full inline table.
type rawDependencySpec struct {
	scalar *string
	table  *DependencySpec
}

func (r *rawDependencySpec) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		r.scalar = &v
	case map[string]any:
		spec, err := decodeDependencyTable(v)
		if err != nil {
			return err
		}
		r.table = spec
	default:
		return fmt.Errorf("dependency entry must be a path string or a table, got %T", value)
	}
	return nil
}

func decodeDependencyTable(raw map[string]any) (*DependencySpec, error) {
	buf, err := toml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var spec DependencySpec
	if err := toml.Unmarshal(buf, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (r rawDependencySpec) resolve() DependencySpec {
	if r.scalar != nil {
		return DependencySpec{Path: *r.scalar}
	}
	if r.table != nil {
		return *r.table
	}
	return DependencySpec{}
}

// ToolResourceConfig overrides installation layout for one kind under a tool.
type ToolResourceConfig struct {
	Path        string `toml:"path,omitempty"`
	MergeTarget string `toml:"merge-target,omitempty"`
	Flatten     bool   `toml:"flatten,omitempty"`
}

// ToolConfig describes one [tools.<name>] table.
type ToolConfig struct {
	Path      string                        `toml:"path,omitempty"`
	Enabled   *bool                         `toml:"enabled,omitempty"`
	Resources map[string]ToolResourceConfig `toml:"resources,omitempty"`
}

// EnabledOrDefault reports whether the tool participates in installs; the
// default is true when the manifest author omits the key.
func (t ToolConfig) EnabledOrDefault() bool {
	if t.Enabled == nil {
		return true
	}
	return *t.Enabled
}

// TargetConfig is the optional [target] table overriding default install
// roots per kind, plus the .gitignore-management toggle.
type TargetConfig struct {
	Agents     string `toml:"agents,omitempty"`
	Snippets   string `toml:"snippets,omitempty"`
	Commands   string `toml:"commands,omitempty"`
	Scripts    string `toml:"scripts,omitempty"`
	Hooks      string `toml:"hooks,omitempty"`
	MCPServers string `toml:"mcp-servers,omitempty"`
	Skills     string `toml:"skills,omitempty"`
	Gitignore  bool   `toml:"gitignore,omitempty"`
}

// ProjectConfig feeds pkg/template's project.* context namespace.
type ProjectConfig map[string]any

// rawManifest is the literal TOML document shape; kind tables are decoded
// through rawDependencySpec so both shorthand and full forms parse.
type rawManifest struct {
	Project ProjectConfig                      `toml:"project,omitempty"`
	Sources map[string]string                  `toml:"sources,omitempty"`
	Target  TargetConfig                       `toml:"target,omitempty"`
	Tools   map[string]ToolConfig              `toml:"tools,omitempty"`

	Agents     map[string]rawDependencySpec `toml:"agents,omitempty"`
	Snippets   map[string]rawDependencySpec `toml:"snippets,omitempty"`
	Commands   map[string]rawDependencySpec `toml:"commands,omitempty"`
	Scripts    map[string]rawDependencySpec `toml:"scripts,omitempty"`
	Hooks      map[string]rawDependencySpec `toml:"hooks,omitempty"`
	MCPServers map[string]rawDependencySpec `toml:"mcp-servers,omitempty"`
	Skills     map[string]rawDependencySpec `toml:"skills,omitempty"`

	Patch map[string]map[string]map[string]any `toml:"patch,omitempty"`
}

// Manifest is the parsed, normalized form of agpm.toml used by the rest of
// the pipeline: dependency tables are keyed by core.Kind rather than by the
// TOML section's plural field name.
type Manifest struct {
	Project ProjectConfig
	Sources map[string]string
	Target  TargetConfig
	Tools   map[string]ToolConfig

	// Dependencies maps kind -> alias -> spec.
	Dependencies map[core.Kind]map[string]DependencySpec

	// Patch maps kind -> alias -> frontmatter key -> value.
	Patch map[core.Kind]map[string]map[string]any
}

// Parse decodes raw agpm.toml bytes into a normalized Manifest.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, core.NewManifestError(core.CodeOther, "parsing manifest: %v", err)
	}

	m := &Manifest{
		Project:      raw.Project,
		Sources:      raw.Sources,
		Target:       raw.Target,
		Tools:        raw.Tools,
		Dependencies: map[core.Kind]map[string]DependencySpec{},
		Patch:        map[core.Kind]map[string]map[string]any{},
	}

	sections := map[core.Kind]map[string]rawDependencySpec{
		core.KindAgent:     raw.Agents,
		core.KindSnippet:   raw.Snippets,
		core.KindCommand:   raw.Commands,
		core.KindScript:    raw.Scripts,
		core.KindHook:      raw.Hooks,
		core.KindMCPServer: raw.MCPServers,
		core.KindSkill:     raw.Skills,
	}
	for kind, table := range sections {
		if len(table) == 0 {
			continue
		}
		resolved := make(map[string]DependencySpec, len(table))
		for alias, raw := range table {
			resolved[alias] = raw.resolve()
		}
		m.Dependencies[kind] = resolved
	}

	for kindName, aliases := range raw.Patch {
		kind, ok := core.ParseKindSection(kindName)
		if !ok {
			return nil, core.NewManifestError(core.CodeOther, "patch table references unknown kind %q", kindName)
		}
		m.Patch[kind] = aliases
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads and parses the manifest file at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewManifestError(core.CodeOther, "reading manifest %s: %v", path, err)
	}
	return Parse(data)
}

// Validate checks the structural invariants spec.md §3 requires of every
// dependency spec: a source-backed spec sets exactly one of version, branch
// and rev and names a source declared in [sources], and every spec sets a
// path.
func (m *Manifest) Validate() error {
	for kind, aliases := range m.Dependencies {
		names := make([]string, 0, len(aliases))
		for alias := range aliases {
			names = append(names, alias)
		}
		sort.Strings(names)
		for _, alias := range names {
			spec := aliases[alias]
			if err := m.validateSpec(kind, alias, spec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manifest) validateSpec(kind core.Kind, alias string, spec DependencySpec) error {
	selectors := 0
	if spec.Version != "" {
		selectors++
	}
	if spec.Branch != "" {
		selectors++
	}
	if spec.Rev != "" {
		selectors++
	}
	if spec.Source != "" && selectors != 1 {
		return core.NewManifestError(core.CodeOther,
			"%s.%s: exactly one of version, branch, rev must be set for a source-backed dependency (got %d)",
			kind, alias, selectors)
	}
	if spec.Source != "" {
		if _, ok := m.Sources[spec.Source]; !ok {
			return core.NewManifestError(core.CodeOther,
				"%s.%s: references undeclared source %q", kind, alias, spec.Source)
		}
	}
	if spec.Path == "" {
		return core.NewManifestError(core.CodeOther, "%s.%s: path is required", kind, alias)
	}
	return nil
}

// AllDependencies flattens Dependencies into a deterministic, sorted slice
// for the resolver's initial work-queue seeding.
type DependencyEntry struct {
	Kind  core.Kind
	Alias string
	Spec  DependencySpec
}

func (m *Manifest) AllDependencies() []DependencyEntry {
	var out []DependencyEntry
	for _, kind := range core.AllKinds {
		aliases := m.Dependencies[kind]
		names := make([]string, 0, len(aliases))
		for alias := range aliases {
			names = append(names, alias)
		}
		sort.Strings(names)
		for _, alias := range names {
			out = append(out, DependencyEntry{Kind: kind, Alias: alias, Spec: aliases[alias]})
		}
	}
	return out
}
