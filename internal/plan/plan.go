package plan

import (
	"fmt"

	"github.com/roach88/flotilla/internal/graph"
	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/state"
)

// Action is the per-resource reconciliation decision.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
	ActionNoOp    Action = "noop"
)

// FieldDiff is one changed attribute: before (live) and after (desired)
// values, and whether the type schema declares the attribute immutable.
type FieldDiff struct {
	Before        model.AttrValue `json:"before,omitempty"`
	After         model.AttrValue `json:"after,omitempty"`
	ForcesReplace bool            `json:"forces_replace,omitempty"`
}

// Change is the planned action for one resource.
type Change struct {
	Key    model.Key            `json:"key"`
	Action Action               `json:"action"`
	Diff   map[string]FieldDiff `json:"diff,omitempty"`
}

// Summary counts planned actions by kind.
type Summary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Replace int `json:"replace"`
	Delete  int `json:"delete"`
	NoOp    int `json:"noop"`
}

// Plan is the ordered action list for one reconciliation pass.
// Creates/updates/replaces/noops appear first, in apply order; deletes
// follow, in reverse prior-apply order. The plan is deterministic for a
// given (desired, live, priorOrder) triple.
type Plan struct {
	Generation state.Generation `json:"generation"`
	Changes    []Change         `json:"changes"`
	Summary    Summary          `json:"summary"`

	// Order is the full apply order of the desired set, recorded by the
	// store after a successful apply and consumed (reversed) by teardown.
	Order []model.Key `json:"order"`
}

// AllNoOp reports whether the plan contains no effective action.
func (p *Plan) AllNoOp() bool {
	return p.Summary.Create == 0 && p.Summary.Update == 0 &&
		p.Summary.Replace == 0 && p.Summary.Delete == 0
}

// Compute diffs the desired state against the live snapshot and produces
// the action plan. priorOrder is the recorded apply order of the last
// successful pass; it sequences deletes (reverse order) so dependents are
// removed before their dependencies.
func Compute(desired state.Desired, live state.Live, schemas *model.SchemaRegistry, priorOrder []model.Key) (*Plan, error) {
	order, err := graph.ApplyOrder(desired.Resources)
	if err != nil {
		return nil, err
	}

	p := &Plan{Generation: desired.Generation, Order: order}

	// Resources planned for creation or replacement in this pass. Their
	// generated outputs only exist after apply, so dependents referencing
	// them must be re-resolved rather than planned NoOp - otherwise a
	// replacement would leave dependents holding the deleted resource's
	// identifiers. Topological order guarantees the target's action is
	// decided before any dependent is diffed.
	regen := make(map[model.Key]bool)

	for _, k := range order {
		r, _ := desired.Resources.Get(k)
		schema, err := schemas.Lookup(k.Type)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", k, err)
		}

		liveAttrs, exists := live.Get(k)
		if !exists {
			p.add(Change{Key: k, Action: ActionCreate, Diff: createDiff(r.Attrs)})
			regen[k] = true
			continue
		}

		diff := diffAttrs(r.Attrs, liveAttrs, schema, live, regen)
		switch {
		case len(diff) == 0:
			p.add(Change{Key: k, Action: ActionNoOp})
		case anyForcesReplace(diff):
			p.add(Change{Key: k, Action: ActionReplace, Diff: diff})
			regen[k] = true
		default:
			p.add(Change{Key: k, Action: ActionUpdate, Diff: diff})
		}
	}

	for _, k := range deleteOrder(desired, live, priorOrder) {
		liveAttrs, _ := live.Get(k)
		p.add(Change{Key: k, Action: ActionDelete, Diff: deleteDiff(liveAttrs)})
	}

	return p, nil
}

func (p *Plan) add(c Change) {
	p.Changes = append(p.Changes, c)
	switch c.Action {
	case ActionCreate:
		p.Summary.Create++
	case ActionUpdate:
		p.Summary.Update++
	case ActionReplace:
		p.Summary.Replace++
	case ActionDelete:
		p.Summary.Delete++
	case ActionNoOp:
		p.Summary.NoOp++
	}
}

// createDiff renders every desired attribute as a before-less diff entry.
func createDiff(attrs model.Attrs) map[string]FieldDiff {
	diff := make(map[string]FieldDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = FieldDiff{After: v}
	}
	return diff
}

// deleteDiff renders every live attribute as an after-less diff entry.
func deleteDiff(attrs model.Attrs) map[string]FieldDiff {
	diff := make(map[string]FieldDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = FieldDiff{Before: v}
	}
	return diff
}

// diffAttrs compares desired attributes against live ones. Desired
// references are resolved against the live snapshot before comparison; a
// reference whose target has no live value yet, or is planned for
// creation or replacement in this pass, is treated as changed (its value
// is only known after the dependency is applied).
//
// Live-only attributes count as removals unless the schema declares them
// generated outputs - providers add identifiers the configuration never
// mentions, and those must not read as drift.
func diffAttrs(desired, liveAttrs model.Attrs, schema model.TypeSchema, live state.Live, regen map[model.Key]bool) map[string]FieldDiff {
	diff := make(map[string]FieldDiff)

	for k, want := range desired {
		resolved, known := resolveForDiff(want, live, regen)
		have, present := liveAttrs[k]
		switch {
		case !present:
			diff[k] = FieldDiff{After: want, ForcesReplace: schema.ForcesReplace(k)}
		case !known || !model.Equal(resolved, have):
			diff[k] = FieldDiff{Before: have, After: want, ForcesReplace: schema.ForcesReplace(k)}
		}
	}

	for k, have := range liveAttrs {
		if _, present := desired[k]; present {
			continue
		}
		if schema.Outputs[k] {
			continue
		}
		diff[k] = FieldDiff{Before: have, ForcesReplace: schema.ForcesReplace(k)}
	}

	return diff
}

// resolveForDiff resolves references for comparison purposes.
// Returns known=false when any referenced value is not yet live, or when
// its target is being created or replaced in the current pass.
func resolveForDiff(v model.AttrValue, live state.Live, regen map[model.Key]bool) (model.AttrValue, bool) {
	switch val := v.(type) {
	case model.RefVal:
		if regen[val.Target] {
			return nil, false
		}
		target, ok := live.Get(val.Target)
		if !ok {
			return nil, false
		}
		out, ok := target[val.Attr]
		if !ok {
			return nil, false
		}
		return out, true
	case model.ListVal:
		out := make(model.ListVal, len(val))
		for i, e := range val {
			r, known := resolveForDiff(e, live, regen)
			if !known {
				return nil, false
			}
			out[i] = r
		}
		return out, true
	case model.MapVal:
		out := make(model.MapVal, len(val))
		for k, e := range val {
			r, known := resolveForDiff(e, live, regen)
			if !known {
				return nil, false
			}
			out[k] = r
		}
		return out, true
	default:
		return v, true
	}
}

func anyForcesReplace(diff map[string]FieldDiff) bool {
	for _, d := range diff {
		if d.ForcesReplace {
			return true
		}
	}
	return false
}

// deleteOrder sequences resources present in live but absent from desired.
// The reverse of the recorded prior apply order is authoritative; keys
// that predate any recording (or were never recorded) fall back to
// reverse-lexicographic order, appended after the recorded ones.
func deleteOrder(desired state.Desired, live state.Live, priorOrder []model.Key) []model.Key {
	doomed := make(map[model.Key]bool)
	for _, k := range live.Keys() {
		if !desired.Resources.Contains(k) {
			doomed[k] = true
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	var out []model.Key
	for _, k := range graph.ReverseOrder(priorOrder) {
		if doomed[k] {
			out = append(out, k)
			delete(doomed, k)
		}
	}
	// Unrecorded stragglers, deterministic fallback.
	var rest []model.Key
	for _, k := range live.Keys() {
		if doomed[k] {
			rest = append(rest, k)
		}
	}
	for i := len(rest) - 1; i >= 0; i-- {
		out = append(out, rest[i])
	}
	return out
}
