package template

import "github.com/agpm-project/agpm/pkg/core"

// SelfContext is the self.* namespace: identity of the resource being
// rendered (spec.md §4.F).
type SelfContext struct {
	Name    string
	Version string
	Source  string
}

// DepContext is one entry of the deps.<kind>.<alias> namespace. Content is
// non-nil only when the dependency's own install flag is false, per
// spec.md §4.F ("content is present iff that dep's install == false").
type DepContext struct {
	Path        string
	InstalledAt string
	Version     string
	Source      string
	Content     *string
}

// Context is the full rendering context for one resource: manifest project
// settings, merged template variables, per-dependency metadata, and the
// resource's own identity.
type Context struct {
	Project map[string]any
	Vars    map[string]any
	// Deps is keyed "<kind-section>.<alias>", e.g. "agents.helper", matching
	// the deps.<kind>.<alias> dotted-path namespace resources reference.
	Deps map[string]DepContext
	Self SelfContext
}

// NewContext returns an empty Context with initialized maps.
func NewContext() *Context {
	return &Context{
		Project: map[string]any{},
		Vars:    map[string]any{},
		Deps:    map[string]DepContext{},
	}
}

// canonical renders the context into the plain nested-map shape Checksum
// hashes, so the checksum covers exactly what templates can observe.
func (c *Context) canonical() map[string]any {
	deps := map[string]any{}
	for key, dep := range c.Deps {
		entry := map[string]any{
			"path":         dep.Path,
			"installed_at": dep.InstalledAt,
			"version":      dep.Version,
			"source":       dep.Source,
		}
		if dep.Content != nil {
			entry["content"] = *dep.Content
		}
		deps[key] = entry
	}
	return map[string]any{
		"project": c.Project,
		"vars":    c.Vars,
		"deps":    deps,
		"self": map[string]any{
			"name":    c.Self.Name,
			"version": c.Self.Version,
			"source":  c.Self.Source,
		},
	}
}

// Checksum is the context checksum of spec.md §4.F: a SHA-256 over canonical
// JSON of the rendering context, independent of the rendered artifact's own
// checksum, so template-input changes invalidate a lockfile entry even when
// the rendered bytes happen to collide. Reuses pkg/core's canonical-JSON
// hashing rather than reimplementing key-sorting.
func (c *Context) Checksum() string {
	return core.VariantInputs(c.canonical()).Hash()
}

// lookup resolves a dotted path like "project.name", "vars.model",
// "self.version", or "deps.agents.helper.path" against the context.
func (c *Context) lookup(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	switch path[0] {
	case "project":
		return lookupMap(c.Project, path[1:])
	case "vars":
		return lookupMap(c.Vars, path[1:])
	case "self":
		return lookupSelf(c.Self, path[1:])
	case "deps":
		if len(path) < 3 {
			return nil, false
		}
		dep, ok := c.Deps[path[1]+"."+path[2]]
		if !ok {
			return nil, false
		}
		return lookupDep(dep, path[3:])
	default:
		return nil, false
	}
}

func lookupMap(m map[string]any, rest []string) (any, bool) {
	if len(rest) == 0 {
		return m, true
	}
	v, ok := m[rest[0]]
	if !ok {
		return nil, false
	}
	if len(rest) == 1 {
		return v, true
	}
	nested, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupMap(nested, rest[1:])
}

func lookupSelf(s SelfContext, rest []string) (any, bool) {
	if len(rest) == 0 {
		return s, true
	}
	switch rest[0] {
	case "name":
		return s.Name, true
	case "version":
		return s.Version, true
	case "source":
		return s.Source, true
	default:
		return nil, false
	}
}

func lookupDep(d DepContext, rest []string) (any, bool) {
	if len(rest) == 0 {
		return d, true
	}
	switch rest[0] {
	case "path":
		return d.Path, true
	case "installed_at":
		return d.InstalledAt, true
	case "version":
		return d.Version, true
	case "source":
		return d.Source, true
	case "content":
		if d.Content == nil {
			return nil, false
		}
		return *d.Content, true
	default:
		return nil, false
	}
}
