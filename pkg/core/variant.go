package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// VariantInputs is the normalized form of a resource's merged template_vars:
// project defaults <- resource override <- variant override (§4.F). It is a
// tagged union of scalar / list / map values keyed by string, per the
// "runtime-typed variant inputs" design note in spec.md §9 — modeled here as
// map[string]any holding only JSON-safe values (string, float64, bool, nil,
// []any, map[string]any) so canonical hashing and TOML/JSON round-tripping
// agree on shape.
type VariantInputs map[string]any

// Hash computes the SHA-256 over a canonical JSON serialization of v: map
// keys sorted recursively, no whitespace. Distinct variants of the same
// resource are identified solely by this hash (spec.md §3, §4.E.5).
func (v VariantInputs) Hash() string {
	canon := canonicalize(map[string]any(v))
	b, err := json.Marshal(canon)
	if err != nil {
		// canonicalize only ever produces json.Marshal-safe values.
		panic("core: variant inputs not JSON-safe: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 8 hex characters of Hash, used to suffix
// variant file names (spec.md §4.E.5).
func (v VariantInputs) ShortHash() string {
	h := v.Hash()
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// Merge layers override on top of v, returning a new VariantInputs; keys in
// override replace keys in v (project defaults <- resource <- variant).
func (v VariantInputs) Merge(override VariantInputs) VariantInputs {
	out := make(VariantInputs, len(v)+len(override))
	for k, val := range v {
		out[k] = val
	}
	for k, val := range override {
		out[k] = val
	}
	return out
}

// canonicalSortedMap is a JSON-marshalable representation of a map with a
// fixed key order, used so two maps with identical contents but different
// insertion order hash identically.
type canonicalSortedMap struct {
	keys   []string
	values map[string]any
}

func (c canonicalSortedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range c.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		vb, err := json.Marshal(c.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// canonicalize recursively rewrites maps into canonicalSortedMap, including
// maps nested inside slices; slices keep their element order and scalars
// are returned unchanged.
func canonicalize(val any) any {
	switch t := val.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make(map[string]any, len(t))
		for k, v := range t {
			values[k] = canonicalize(v)
		}
		return canonicalSortedMap{keys: keys, values: values}
	case VariantInputs:
		return canonicalize(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = canonicalize(v)
		}
		return out
	default:
		return t
	}
}
