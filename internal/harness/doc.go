// Package harness provides a conformance testing framework for the
// deployment pipeline.
//
// The harness compiles a stack manifest, then drives plan, apply,
// deploy, and destroy steps against the in-memory provider, runtime,
// and target group, recording every structured log event the
// components emit. Scenarios assert on step results, on the event
// trace, and on the final live state; golden files pin the full
// outcome of a scenario.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: first_deploy
//	description: "Full pipeline from empty state"
//	manifest: manifests/trader.cue
//	secrets:
//	  secret.trader_api_key: tok-1
//	steps:
//	  - run: deploy
//	    expect:
//	      outcome: SUCCEEDED
//	      revision: 1
//	assertions:
//	  - type: trace_order
//	    stages: [secrets, build, publish, apply, rollout]
//	  - type: final_state
//	    resource: network.main
//	    expect: { id: net-000001 }
//
// # Assertion Types
//
//   - trace_contains: an event with the given stage and attribute
//     subset appears in the trace
//   - trace_order: first occurrences of the given stages appear in order
//   - trace_count: events matching stage (and attrs) appear exactly N times
//   - final_state: a resource's live attributes contain the expected values
//
// # Determinism
//
// Every run uses a fake clock, sequenced deployment and rollout tokens
// ("deploy-000001", "ro-000001"), the counter-based memory provider,
// and a fresh in-memory SQLite database, so traces and final state are
// identical across runs and safe for golden comparison.
package harness
