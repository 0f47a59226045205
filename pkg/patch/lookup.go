package patch

import (
	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/manifest"
)

// ForAlias applies the project/private patch tables declared for
// (kind, alias) — the manifest alias a resolved entry was expanded from,
// i.e. its lookup_name() per spec.md §4.G — to original.
func ForAlias(m *manifest.Manifest, pm *manifest.PrivateManifest, kind core.Kind, alias string, original map[string]any) Result {
	var project, private map[string]any
	if m != nil {
		project = m.Patch[kind][alias]
	}
	if pm != nil {
		private = pm.Patch[kind][alias]
	}
	return Apply(original, project, private)
}
