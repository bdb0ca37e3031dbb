// Package snapshot defines the serialized form of a document cache's state.
//
// A snapshot is a plain map from query-hash strings to maps from
// variables-key strings to result payloads, plus a __META record that tags
// which cache variant produced it. The plain-map shape exists so a snapshot
// can be embedded in a larger page-transfer payload, shipped across a
// process boundary, and rehydrated on the other side.
package snapshot

import (
	"encoding/json"
	"io"
)

// MetaKey is the reserved root key holding the snapshot metadata record.
// It can never collide with a query hash, which is always hex.
const MetaKey = "__META"

// Meta tags a snapshot with the cache variant that produced it.
// ExtraRootIDs is kept for structural parity with the generic snapshot
// shape; a document cache has no extra roots and always leaves it empty.
type Meta struct {
	Variant      string   `json:"variant"`
	ExtraRootIDs []string `json:"extraRootIds"`
}

// Snapshot is the typed view of a cache's extracted state.
type Snapshot struct {
	Variant      string
	ExtraRootIDs []string
	Data         map[string]map[string]any
}

// New creates an empty snapshot tagged with the given variant.
func New(variant string) *Snapshot {
	return &Snapshot{
		Variant:      variant,
		ExtraRootIDs: []string{},
		Data:         make(map[string]map[string]any),
	}
}

// Set records a result payload under (hash, varKey).
func (s *Snapshot) Set(hash, varKey string, result any) {
	byVars := s.Data[hash]
	if byVars == nil {
		byVars = make(map[string]any)
		s.Data[hash] = byVars
	}
	byVars[varKey] = result
}

// Get returns the payload stored under (hash, varKey), if any.
func (s *Snapshot) Get(hash, varKey string) (any, bool) {
	byVars, ok := s.Data[hash]
	if !ok {
		return nil, false
	}
	v, ok := byVars[varKey]
	return v, ok
}

// Len reports the number of stored (hash, varKey) entries.
func (s *Snapshot) Len() int {
	n := 0
	for _, byVars := range s.Data {
		n += len(byVars)
	}
	return n
}

// ToMap renders the snapshot as its plain serializable form. The returned
// maps are fresh at both levels; payloads are shared, not copied.
func (s *Snapshot) ToMap() map[string]any {
	out := make(map[string]any, len(s.Data)+1)

	for hash, byVars := range s.Data {
		inner := make(map[string]any, len(byVars))
		for varKey, result := range byVars {
			inner[varKey] = result
		}
		out[hash] = inner
	}

	extra := s.ExtraRootIDs
	if extra == nil {
		extra = []string{}
	}
	out[MetaKey] = map[string]any{
		"variant":      s.Variant,
		"extraRootIds": extra,
	}

	return out
}

// FromMap builds a snapshot from its plain form. Parsing is tolerant: root
// values that are not maps are skipped, and a missing or malformed __META
// record simply leaves the variant empty. No validation happens beyond
// shape expectations.
func FromMap(m map[string]any) *Snapshot {
	s := &Snapshot{
		ExtraRootIDs: []string{},
		Data:         make(map[string]map[string]any, len(m)),
	}

	for key, val := range m {
		if key == MetaKey {
			meta, ok := val.(map[string]any)
			if !ok {
				continue
			}
			if variant, ok := meta["variant"].(string); ok {
				s.Variant = variant
			}
			if ids, ok := meta["extraRootIds"].([]any); ok {
				for _, id := range ids {
					if str, ok := id.(string); ok {
						s.ExtraRootIDs = append(s.ExtraRootIDs, str)
					}
				}
			}
			continue
		}

		byVars, ok := val.(map[string]any)
		if !ok {
			continue
		}
		inner := make(map[string]any, len(byVars))
		for varKey, result := range byVars {
			inner[varKey] = result
		}
		s.Data[key] = inner
	}

	return s
}

// Encode writes the snapshot to w as JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(s.ToMap())
}

// Decode reads a JSON snapshot from r.
func Decode(r io.Reader) (*Snapshot, error) {
	var m map[string]any
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return FromMap(m), nil
}
