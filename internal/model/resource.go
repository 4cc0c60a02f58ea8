package model

import (
	"fmt"
	"sort"
	"strings"
)

// Key uniquely identifies a resource as a (type, name) pair.
type Key struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// String renders the key as "type.name".
func (k Key) String() string {
	return k.Type + "." + k.Name
}

// ParseKey parses a "type.name" key string.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Key{}, fmt.Errorf("invalid resource key %q: want \"type.name\"", s)
	}
	return Key{Type: parts[0], Name: parts[1]}, nil
}

// Less orders keys lexicographically by type, then name.
// Used only for stable iteration over key sets, never for apply ordering
// (apply ordering is declaration order, see the graph package).
func (k Key) Less(other Key) bool {
	if k.Type != other.Type {
		return k.Type < other.Type
	}
	return k.Name < other.Name
}

// Resource is a uniquely-keyed provisionable entity: a (type, name) node
// plus a mapping of configuration attributes. Attribute values are literals
// or references to other resources' output attributes.
type Resource struct {
	Key   Key   `json:"key"`
	Attrs Attrs `json:"attrs"`
}

// Refs returns every cross-resource reference in the resource's attributes,
// in deterministic order.
func (r Resource) Refs() []RefVal {
	return r.Attrs.Refs()
}

// Clone returns a deep copy of the resource.
func (r Resource) Clone() Resource {
	return Resource{Key: r.Key, Attrs: r.Attrs.Clone()}
}

// ResourceSet is an ordered collection of resources keyed by (type, name).
// Declaration order is preserved - it is the tie-break for apply ordering
// and must never change after construction.
type ResourceSet struct {
	order []Key
	byKey map[Key]Resource
}

// NewResourceSet creates an empty resource set.
func NewResourceSet() *ResourceSet {
	return &ResourceSet{byKey: make(map[Key]Resource)}
}

// Add appends a resource in declaration order.
// Returns an error if the key is already present.
func (s *ResourceSet) Add(r Resource) error {
	if _, exists := s.byKey[r.Key]; exists {
		return fmt.Errorf("duplicate resource key %s", r.Key)
	}
	s.order = append(s.order, r.Key)
	s.byKey[r.Key] = r
	return nil
}

// Get returns the resource for a key, if present.
func (s *ResourceSet) Get(k Key) (Resource, bool) {
	r, ok := s.byKey[k]
	return r, ok
}

// Contains reports whether the set holds a resource with the given key.
func (s *ResourceSet) Contains(k Key) bool {
	_, ok := s.byKey[k]
	return ok
}

// Keys returns the resource keys in declaration order.
// The returned slice is a copy - callers may mutate it freely.
func (s *ResourceSet) Keys() []Key {
	out := make([]Key, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of resources in the set.
func (s *ResourceSet) Len() int {
	return len(s.order)
}

// Clone returns a deep copy of the set, preserving declaration order.
func (s *ResourceSet) Clone() *ResourceSet {
	out := NewResourceSet()
	for _, k := range s.order {
		// Add cannot fail: keys are unique in the source set.
		_ = out.Add(s.byKey[k].Clone())
	}
	return out
}

// sortedKeys returns the keys of a string-keyed map in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
