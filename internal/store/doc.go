// Package store persists the orchestrator's durable state in SQLite:
// live resource snapshots per generation, the apply order each
// generation was reconciled in, the current deployment of each service,
// and the deployment history.
//
// Attribute mappings are serialized as canonical JSON so a snapshot
// written and reloaded compares byte-identical. The apply order is
// recorded because teardown replays it in reverse; a freshly computed
// order could destroy a still-referenced dependency.
package store
