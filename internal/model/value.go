package model

import (
	"fmt"
	"strings"
)

// AttrValue is a sealed interface representing constrained attribute value
// types. Only StringVal, IntVal, BoolVal, ListVal, MapVal, and RefVal
// implement it. No float type - floats break deterministic hashing.
type AttrValue interface {
	attrValue() // Sealed - only these types implement it
}

// StringVal represents a string attribute value.
type StringVal string

func (StringVal) attrValue() {}

// IntVal represents an integer attribute value. Always int64.
type IntVal int64

func (IntVal) attrValue() {}

// BoolVal represents a boolean attribute value.
type BoolVal bool

func (BoolVal) attrValue() {}

// ListVal represents an ordered list of attribute values.
type ListVal []AttrValue

func (ListVal) attrValue() {}

// MapVal represents a string-keyed mapping of attribute values.
type MapVal map[string]AttrValue

func (MapVal) attrValue() {}

// RefVal references an output attribute of another resource in the same
// desired-state set, e.g. the generated ID of a network. The referenced
// value is only known after the target resource has been applied.
type RefVal struct {
	Target Key    // resource being referenced
	Attr   string // output attribute name, e.g. "id" or "arn"
}

func (RefVal) attrValue() {}

// String renders the reference in manifest syntax: "${type.name.attr}".
func (r RefVal) String() string {
	return "${" + r.Target.Type + "." + r.Target.Name + "." + r.Attr + "}"
}

// ParseRef parses a "${type.name.attr}" reference string.
// Returns ok=false if s is not a reference.
func ParseRef(s string) (RefVal, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return RefVal{}, false
	}
	inner := s[2 : len(s)-1]
	parts := strings.Split(inner, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return RefVal{}, false
	}
	return RefVal{Target: Key{Type: parts[0], Name: parts[1]}, Attr: parts[2]}, true
}

// Attrs is a named attribute mapping, the configuration (or live) payload
// of a single resource.
type Attrs map[string]AttrValue

// Clone returns a deep copy of the attribute mapping.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v AttrValue) AttrValue {
	switch val := v.(type) {
	case ListVal:
		out := make(ListVal, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case MapVal:
		out := make(MapVal, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	default:
		// StringVal, IntVal, BoolVal, RefVal are value types.
		return v
	}
}

// Refs returns every RefVal reachable from the attribute mapping,
// in deterministic order (sorted attribute key, then list position).
func (a Attrs) Refs() []RefVal {
	var refs []RefVal
	for _, k := range sortedKeys(a) {
		refs = appendRefs(refs, a[k])
	}
	return refs
}

func appendRefs(refs []RefVal, v AttrValue) []RefVal {
	switch val := v.(type) {
	case RefVal:
		return append(refs, val)
	case ListVal:
		for _, e := range val {
			refs = appendRefs(refs, e)
		}
		return refs
	case MapVal:
		for _, k := range sortedKeys(val) {
			refs = appendRefs(refs, val[k])
		}
		return refs
	default:
		return refs
	}
}

// Equal reports deep equality of two attribute values.
func Equal(a, b AttrValue) bool {
	switch av := a.(type) {
	case StringVal:
		bv, ok := b.(StringVal)
		return ok && av == bv
	case IntVal:
		bv, ok := b.(IntVal)
		return ok && av == bv
	case BoolVal:
		bv, ok := b.(BoolVal)
		return ok && av == bv
	case RefVal:
		bv, ok := b.(RefVal)
		return ok && av == bv
	case ListVal:
		bv, ok := b.(ListVal)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case MapVal:
		bv, ok := b.(MapVal)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvk, present := bv[k]
			if !present || !Equal(v, bvk) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	default:
		panic(fmt.Sprintf("model: unknown AttrValue type %T", a))
	}
}
