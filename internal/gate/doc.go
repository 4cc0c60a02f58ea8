// Package gate sequences container startup within a single task instance.
//
// A container with a dependsOn entry is not started until the referenced
// container satisfies the declared condition: START (the dependency is
// running), HEALTHY (its health check reports success), COMPLETE (it
// stopped), or SUCCESS (it stopped with exit code zero).
//
// Per-container state machine:
//
//	Pending -> Starting -> Running -> {Healthy | Unhealthy | Stopped}
//
// Health probing runs on a fixed cadence driven by an injected clock: run
// the probe command, classify pass/fail, count consecutive failures.
// Retries-many consecutive failures flip the container to Unhealthy; any
// single success resets the counter and marks it Healthy. Failures inside
// the start period are grace - they do not count toward the failure
// streak.
//
// If a dependency never reaches the required condition within
// startPeriod + retries x interval, the dependent container is never
// started and the task instance is marked Failed. This is not retried
// here; the rollout controller sees it as a launch failure for that
// instance.
//
// Post-launch health is deliberately out of scope: once Launch hands a
// running instance to the rollout controller, later health flaps are a
// target-health concern, not a startup-gate concern.
package gate
