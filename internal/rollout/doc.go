// Package rollout replaces a service's running task instances with a new
// task definition revision while the service stays reachable through its
// load-balancer binding.
//
// The protocol is launch-then-drain: new-revision instances are launched
// and registered with the target group, the controller waits until every
// new instance reports a healthy target status, and only then are
// old-revision instances deregistered and stopped. With a desired count
// of one this degrades to a brief single-instance handoff; it never
// scales the service to zero mid-rollout.
//
// A rollout that does not stabilize within its wait budget is surfaced
// as a TimeoutError. The controller never reverts on its own; the
// stalled state is left for the operator or outer automation to decide.
// Cancellation through the context is distinct from timeout and leaves
// the rollout marked Cancelled.
package rollout
