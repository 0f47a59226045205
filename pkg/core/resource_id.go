package core

import "fmt"

// ResourceId is the identity key used everywhere after resolution (spec.md
// §3): two entries collide iff all five fields match.
type ResourceId struct {
	Name              string
	Source            string // empty for local resources
	Tool              string
	Kind              Kind
	VariantInputsHash string
}

// Equal reports whether id and other identify the same resource.
func (id ResourceId) Equal(other ResourceId) bool {
	return id.Name == other.Name &&
		id.Source == other.Source &&
		id.Tool == other.Tool &&
		id.Kind == other.Kind &&
		id.VariantInputsHash == other.VariantInputsHash
}

// String renders a stable, human-readable form used in logs and error
// messages: "source/kind:name#hash" with the source and hash segments
// omitted when empty.
func (id ResourceId) String() string {
	s := fmt.Sprintf("%s:%s", id.Kind, id.Name)
	if id.Source != "" {
		s = id.Source + "/" + s
	}
	if id.VariantInputsHash != "" {
		s += "#" + id.VariantInputsHash[:min(8, len(id.VariantInputsHash))]
	}
	return s
}

// SortKey is the tuple lockfile sections sort entries by: (name, source,
// tool, variant_inputs_hash), per spec.md §3 invariants.
func (id ResourceId) SortKey() [4]string {
	return [4]string{id.Name, id.Source, id.Tool, id.VariantInputsHash}
}
