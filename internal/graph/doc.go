// Package graph computes apply ordering over the resource reference graph.
//
// ApplyOrder produces a linear order in which every resource appears after
// all resources it references, using an iterative depth-first topological
// sort with three-color visitation markers. Recursion is avoided on
// purpose: the traversal runs on an explicit stack so large graphs cannot
// blow the call stack.
//
// Determinism: ties among independent resources break by declaration
// order, so the same graph always yields the same plan, and plans stay
// diffable across runs.
//
// Teardown does NOT recompute an order here. The reverse of the last
// successful apply order (persisted by the store package) is the only safe
// destruction sequence, since a freshly computed order could destroy a
// dependency that a not-yet-destroyed live resource still references.
// ReverseOrder is the helper that flips a recorded order.
package graph
