// Package features holds the hashed representation of one parsed example: a
// fixed array of 256 feature spaces addressed by the first byte of the
// namespace name, plus the order in which namespace slots were touched.
package features

import "github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"

// DefaultNamespace is the slot used by a namespace section without a name.
// The value is fixed by the native example format.
const DefaultNamespace byte = 32

// NumSlots is the number of addressable namespace slots.
const NumSlots = 256

// NamespaceInfo describes one namespace section of a line.
type NamespaceInfo struct {
	Index byte
	Name  string
	Hash  uint64
}

// NewNamespaceInfo derives the slot and hash for a namespace name. Names that
// share a first byte share a slot.
func NewNamespaceInfo(name string, seed uint64) NamespaceInfo {
	index := DefaultNamespace
	if name != "" {
		index = name[0]
	}
	return NamespaceInfo{
		Index: index,
		Name:  name,
		Hash:  hasher.HashString(name, seed),
	}
}

// Feature is a single hashed (id, value) pair.
type Feature struct {
	ID    uint64  `json:"id"`
	Value float32 `json:"value"`
}

// FeatureSpace is the ordered list of features written to one slot.
type FeatureSpace struct {
	Values []Feature
}

// Len returns the number of features in the space.
func (fs *FeatureSpace) Len() int {
	return len(fs.Values)
}

// Features is the per-line result. Each parse allocates its own value; there is
// no sharing between instances.
type Features struct {
	NamespaceIndices []byte
	FeatureSpaces    [NumSlots]FeatureSpace
}

// NewFeatures returns an empty Features value.
func NewFeatures() *Features {
	return &Features{NamespaceIndices: make([]byte, 0, 4)}
}

// Touch records that a namespace section addressed slot index. A slot visited
// by two sections of the same line is recorded twice.
func (f *Features) Touch(index byte) {
	f.NamespaceIndices = append(f.NamespaceIndices, index)
}

// Push appends a feature to the namespace's slot.
func (f *Features) Push(ns NamespaceInfo, id uint64, value float32) {
	space := &f.FeatureSpaces[ns.Index]
	space.Values = append(space.Values, Feature{ID: id, Value: value})
}

// Slot returns the feature space for index.
func (f *Features) Slot(index byte) *FeatureSpace {
	return &f.FeatureSpaces[index]
}

// NumFeatures counts features across all slots.
func (f *Features) NumFeatures() int {
	total := 0
	for i := range f.FeatureSpaces {
		total += len(f.FeatureSpaces[i].Values)
	}
	return total
}

// Populated returns the distinct slots holding at least one feature, in
// ascending order.
func (f *Features) Populated() []byte {
	var out []byte
	for i := range f.FeatureSpaces {
		if len(f.FeatureSpaces[i].Values) > 0 {
			out = append(out, byte(i))
		}
	}
	return out
}

// Namespace is a slot together with its features, used for serialisation.
type Namespace struct {
	Index    byte      `json:"index"`
	Features []Feature `json:"features"`
}

// Namespaces lists touched slots in first-touch order. A slot revisited by a
// later section is listed once.
func (f *Features) Namespaces() []Namespace {
	var seen [NumSlots]bool
	out := make([]Namespace, 0, len(f.NamespaceIndices))
	for _, idx := range f.NamespaceIndices {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, Namespace{Index: idx, Features: f.FeatureSpaces[idx].Values})
	}
	return out
}

// FromNamespaces rebuilds a Features value from its serialised form.
func FromNamespaces(namespaces []Namespace) *Features {
	f := NewFeatures()
	for _, ns := range namespaces {
		f.Touch(ns.Index)
		f.FeatureSpaces[ns.Index].Values = append(f.FeatureSpaces[ns.Index].Values, ns.Features...)
	}
	return f
}
