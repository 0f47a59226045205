package frontmatter

import (
	"encoding/json"

	"github.com/agpm-project/agpm/pkg/core"
)

// DependencySpec mirrors a manifest dependency spec (spec.md §3), as
// declared inline in a resource's frontmatter `dependencies:` block.
type DependencySpec struct {
	Source       string         `json:"source,omitempty"`
	Path         string         `json:"path"`
	Version      string         `json:"version,omitempty"`
	Branch       string         `json:"branch,omitempty"`
	Rev          string         `json:"rev,omitempty"`
	Tool         string         `json:"tool,omitempty"`
	Target       string         `json:"target,omitempty"`
	Flatten      bool           `json:"flatten,omitempty"`
	Install      *bool          `json:"install,omitempty"` // nil means unset (defaults true)
	TemplateVars map[string]any `json:"template_vars,omitempty"`
}

// InstallOrDefault returns Install's value, defaulting to true when unset.
func (d DependencySpec) InstallOrDefault() bool {
	if d.Install == nil {
		return true
	}
	return *d.Install
}

// Declared is the parsed `dependencies:` and `template_vars:` sections of a
// resource's frontmatter (spec.md §4.E). Keys of Dependencies are plural
// kind sections ("agents", "snippets", ...); values are alias->spec maps.
type Declared struct {
	Dependencies map[string]map[string]DependencySpec
	TemplateVars map[string]any
}

// ParseDeclared extracts the dependency graph and template variable
// defaults from a resource's already-YAML-decoded frontmatter map. Per
// spec.md §4.E.1, only the frontmatter block itself — never the body — is
// considered here; callers render the frontmatter block's own template
// expressions before calling ParseDeclared so dependency paths can
// interpolate variables.
func ParseDeclared(fm map[string]any) (*Declared, error) {
	d := &Declared{
		Dependencies: map[string]map[string]DependencySpec{},
		TemplateVars: map[string]any{},
	}

	if raw, ok := fm["dependencies"]; ok {
		depsJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, core.NewTemplateError("TemplateSyntax", "encoding dependencies block: %v", err)
		}
		var sections map[string]map[string]any
		if err := json.Unmarshal(depsJSON, &sections); err != nil {
			return nil, core.NewTemplateError("TemplateSyntax", "dependencies block must be a map of kind->alias->spec: %v", err)
		}
		for kind, aliases := range sections {
			specs := map[string]DependencySpec{}
			for alias, rawSpec := range aliases {
				spec, err := decodeDependencySpec(rawSpec)
				if err != nil {
					return nil, core.NewTemplateError("TemplateSyntax", "dependencies.%s.%s: %v", kind, alias, err)
				}
				specs[alias] = spec
			}
			d.Dependencies[kind] = specs
		}
	}

	if raw, ok := fm["template_vars"]; ok {
		if m, ok := raw.(map[string]any); ok {
			d.TemplateVars = m
		}
	}

	return d, nil
}

// decodeDependencySpec accepts either a bare string (shorthand local path)
// or a full spec map, matching the manifest's own dependency-spec shape
// (spec.md §3 "[<kind>] <alias> = "<relpath>" | { ... }").
func decodeDependencySpec(raw any) (DependencySpec, error) {
	if s, ok := raw.(string); ok {
		return DependencySpec{Path: s}, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return DependencySpec{}, err
	}
	var spec DependencySpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return DependencySpec{}, err
	}
	return spec, nil
}
