package graph

import "github.com/roach88/flotilla/internal/model"

// visitation colors for the iterative DFS.
type color uint8

const (
	white color = iota // unvisited
	gray               // in progress (on the traversal stack)
	black              // done (emitted to the order)
)

// frame is one explicit-stack DFS frame: the resource plus a cursor into
// its (deterministic) edge list.
type frame struct {
	key  model.Key
	next int
}

// ApplyOrder computes the linear apply order for a resource set: every
// resource appears after all resources it references. Independent
// resources keep declaration order, making plans deterministic and
// diffable across runs.
//
// Returns a CycleError naming the offending cycle if the reference graph
// is cyclic, or an UnresolvedRefError if a reference points outside the
// set.
func ApplyOrder(set *model.ResourceSet) ([]model.Key, error) {
	keys := set.Keys()
	colors := make(map[model.Key]color, len(keys))

	// Pre-resolve each resource's reference targets once, deduplicated,
	// preserving first-occurrence order for determinism.
	edges := make(map[model.Key][]model.Key, len(keys))
	for _, k := range keys {
		r, _ := set.Get(k)
		seen := make(map[model.Key]bool)
		for _, ref := range r.Refs() {
			if !set.Contains(ref.Target) {
				return nil, &UnresolvedRefError{Source: k, Target: ref.Target, Attr: ref.Attr}
			}
			if !seen[ref.Target] {
				seen[ref.Target] = true
				edges[k] = append(edges[k], ref.Target)
			}
		}
	}

	order := make([]model.Key, 0, len(keys))
	var stack []frame

	for _, root := range keys {
		if colors[root] != white {
			continue
		}
		stack = append(stack[:0], frame{key: root})
		colors[root] = gray

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			targets := edges[f.key]

			if f.next >= len(targets) {
				// All references emitted before this resource.
				colors[f.key] = black
				order = append(order, f.key)
				stack = stack[:len(stack)-1]
				continue
			}

			target := targets[f.next]
			f.next++

			switch colors[target] {
			case white:
				colors[target] = gray
				stack = append(stack, frame{key: target})
			case gray:
				// In-progress node reached again: the traversal stack
				// from the target to the top is the cycle.
				return nil, &CycleError{Path: cyclePath(stack, target)}
			case black:
				// Already ordered.
			}
		}
	}

	return order, nil
}

// cyclePath extracts the cycle from the DFS stack: the segment from the
// first occurrence of target through the stack top, closed with target.
func cyclePath(stack []frame, target model.Key) []model.Key {
	start := 0
	for i, f := range stack {
		if f.key == target {
			start = i
			break
		}
	}
	path := make([]model.Key, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.key)
	}
	return append(path, target)
}

// ReverseOrder returns a reversed copy of an apply order. Teardown runs
// the exact reverse of the last successful apply order.
func ReverseOrder(order []model.Key) []model.Key {
	out := make([]model.Key, len(order))
	for i, k := range order {
		out[len(order)-1-i] = k
	}
	return out
}
