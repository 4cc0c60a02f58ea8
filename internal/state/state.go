// Package state defines the desired and live state snapshots that
// reconciliation diffs. LiveState is an explicit versioned snapshot passed
// by value into each reconciliation call and replaced atomically on
// success - there is no shared global state.
package state

import (
	"github.com/roach88/flotilla/internal/model"
)

// Generation is a monotonically increasing deployment generation number.
type Generation int64

// Desired is the complete target resource graph for one deployment
// generation.
type Desired struct {
	Generation Generation
	Resources  *model.ResourceSet
}

// Live is the last successfully reconciled snapshot of real-world
// resource attributes, keyed identically to the desired state. It is the
// diff baseline: read before every reconciliation pass, replaced
// atomically after a successful apply, never partially updated in place.
type Live struct {
	Generation Generation
	Resources  map[model.Key]model.Attrs
}

// NewLive creates an empty live snapshot at generation zero.
func NewLive() Live {
	return Live{Resources: make(map[model.Key]model.Attrs)}
}

// Get returns the live attributes for a key, if present.
func (l Live) Get(k model.Key) (model.Attrs, bool) {
	attrs, ok := l.Resources[k]
	return attrs, ok
}

// Contains reports whether the snapshot holds the key.
func (l Live) Contains(k model.Key) bool {
	_, ok := l.Resources[k]
	return ok
}

// Clone returns a deep copy. Reconciliation mutates only its own clone,
// so a failed pass can hand back the partial snapshot without having
// touched the caller's baseline.
func (l Live) Clone() Live {
	out := Live{Generation: l.Generation, Resources: make(map[model.Key]model.Attrs, len(l.Resources))}
	for k, attrs := range l.Resources {
		out.Resources[k] = attrs.Clone()
	}
	return out
}

// Put records live attributes for a key, replacing any prior entry.
func (l Live) Put(k model.Key, attrs model.Attrs) {
	l.Resources[k] = attrs
}

// Remove drops a key from the snapshot.
func (l Live) Remove(k model.Key) {
	delete(l.Resources, k)
}

// Keys returns the snapshot's keys in lexicographic order. Live state has
// no declaration order of its own; lexicographic iteration keeps reads
// deterministic. Apply ordering never derives from this - it comes from
// the recorded apply order.
func (l Live) Keys() []model.Key {
	keys := make([]model.Key, 0, len(l.Resources))
	for k := range l.Resources {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []model.Key) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j].Less(keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

// ResolveRefs substitutes every reference in attrs with the referenced
// resource's live attribute value. Called at apply time, once all of a
// resource's dependencies hold live attributes.
func (l Live) ResolveRefs(attrs model.Attrs) (model.Attrs, error) {
	out := make(model.Attrs, len(attrs))
	for k, v := range attrs {
		resolved, err := l.resolveValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func (l Live) resolveValue(v model.AttrValue) (model.AttrValue, error) {
	switch val := v.(type) {
	case model.RefVal:
		target, ok := l.Resources[val.Target]
		if !ok {
			return nil, &UnresolvedLiveRefError{Ref: val}
		}
		out, ok := target[val.Attr]
		if !ok {
			return nil, &UnresolvedLiveRefError{Ref: val, MissingAttr: true}
		}
		return out, nil
	case model.ListVal:
		out := make(model.ListVal, len(val))
		for i, e := range val {
			r, err := l.resolveValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case model.MapVal:
		out := make(model.MapVal, len(val))
		for k, e := range val {
			r, err := l.resolveValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return v, nil
	}
}
