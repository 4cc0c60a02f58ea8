// Package plan implements state reconciliation: diffing the desired
// resource graph against the live snapshot into per-resource actions, and
// executing those actions through the provider capability set.
//
// Reconciliation has three parts:
//
// Compute produces a Plan - one Change per resource with an action in
// {create, update, replace, delete, noop} and a per-attribute diff.
// Creates/updates/replaces are ordered by the dependency resolver's apply
// order; deletes run in the reverse of the recorded prior apply order so
// dependents disappear before their dependencies. Re-planning an unchanged
// desired state against a correctly updated live snapshot yields an
// all-noop plan.
//
// Applier executes a plan fail-fast: the first failing resource halts all
// remaining queued actions for the pass and the partial completion set is
// returned alongside a ReconciliationError. Already-applied resources are
// NOT rolled back; the returned live snapshot reflects exactly the
// resources that were confirmed applied.
//
// Runner enforces single-flight per generation: two reconciliation passes
// against the same desired-state generation cannot overlap, which is what
// keeps the live snapshot free of torn reads without any finer locking.
package plan
