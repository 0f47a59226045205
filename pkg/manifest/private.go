package manifest

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/agpm-project/agpm/pkg/core"
)

// PrivateManifest is the optional agpm.private.toml: per-developer patch
// overrides layered on top of the project's own patches (spec.md §4.G).
// It never declares dependencies or sources of its own.
type PrivateManifest struct {
	Patch map[core.Kind]map[string]map[string]any
}

type rawPrivateManifest struct {
	Patch map[string]map[string]map[string]any `toml:"patch,omitempty"`
}

// ParsePrivate decodes agpm.private.toml bytes.
func ParsePrivate(data []byte) (*PrivateManifest, error) {
	var raw rawPrivateManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, core.NewManifestError(core.CodeOther, "parsing private manifest: %v", err)
	}
	pm := &PrivateManifest{Patch: map[core.Kind]map[string]map[string]any{}}
	for kindName, aliases := range raw.Patch {
		kind, ok := core.ParseKindSection(kindName)
		if !ok {
			return nil, core.NewManifestError(core.CodeOther, "private patch table references unknown kind %q", kindName)
		}
		pm.Patch[kind] = aliases
	}
	return pm, nil
}

// LoadPrivate reads agpm.private.toml at path. A missing file is not an
// error: it yields an empty PrivateManifest, since the file is optional and
// typically gitignored.
func LoadPrivate(path string) (*PrivateManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PrivateManifest{Patch: map[core.Kind]map[string]map[string]any{}}, nil
		}
		return nil, core.NewManifestError(core.CodeOther, "reading private manifest %s: %v", path, err)
	}
	return ParsePrivate(data)
}
