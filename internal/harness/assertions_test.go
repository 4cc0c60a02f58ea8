package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/plan"
	"github.com/roach88/flotilla/internal/state"
)

func intp(n int) *int { return &n }

func traceResult(events ...TraceEvent) *Result {
	return &Result{Pass: true, Trace: events}
}

func event(stage string, attrs map[string]string) TraceEvent {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["stage"] = stage
	return TraceEvent{Level: "INFO", Message: stage, Attrs: attrs}
}

func TestCheckExpectNilClause(t *testing.T) {
	result := &Result{Pass: true}
	step := Step{Run: RunApply}

	checkExpect(result, 0, step, StepResult{Run: RunApply})
	assert.True(t, result.Pass)

	checkExpect(result, 1, step, StepResult{Run: RunApply, Err: "boom"})
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error: boom")
}

func TestCheckExpectErrorSubstring(t *testing.T) {
	result := &Result{Pass: true}
	step := Step{Run: RunDeploy, Expect: &Expect{Error: "SECRET_NOT_FOUND"}}

	checkExpect(result, 0, step, StepResult{Run: RunDeploy, Err: "deploy d-1: stage secrets failed: SECRET_NOT_FOUND: no such secret"})
	assert.True(t, result.Pass)

	checkExpect(result, 1, step, StepResult{Run: RunDeploy, Err: "some other error"})
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "does not contain")
}

func TestCheckExpectSummaryCounts(t *testing.T) {
	result := &Result{Pass: true}
	step := Step{Run: RunPlan, Expect: &Expect{Create: intp(2), NoOp: intp(0)}}
	sr := StepResult{Run: RunPlan, Summary: &plan.Summary{Create: 2}}

	checkExpect(result, 0, step, sr)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// Missing summary when counts are expected is a violation.
	checkExpect(result, 1, step, StepResult{Run: RunPlan})
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "no plan summary")
}

func TestEvalTraceContains(t *testing.T) {
	result := traceResult(
		event("apply", map[string]string{"action": "create", "outcome": "applied"}),
		event("rollout", map[string]string{"outcome": "succeeded"}),
	)

	err := evalAssertion(Assertion{
		Type:  AssertTraceContains,
		Stage: "rollout",
		Attrs: map[string]string{"outcome": "succeeded"},
	}, result)
	assert.NoError(t, err)

	err = evalAssertion(Assertion{
		Type:  AssertTraceContains,
		Stage: "rollout",
		Attrs: map[string]string{"outcome": "timed_out"},
	}, result)
	assert.Error(t, err)
}

func TestEvalTraceOrder(t *testing.T) {
	result := traceResult(
		event("secrets", nil),
		event("build", nil),
		event("apply", nil),
		event("rollout", nil),
	)

	err := evalAssertion(Assertion{
		Type:   AssertTraceOrder,
		Stages: []string{"secrets", "build", "rollout"},
	}, result)
	assert.NoError(t, err)

	err = evalAssertion(Assertion{
		Type:   AssertTraceOrder,
		Stages: []string{"rollout", "build"},
	}, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"build" never appeared`)
}

func TestEvalTraceCount(t *testing.T) {
	result := traceResult(
		event("apply", map[string]string{"action": "create"}),
		event("apply", map[string]string{"action": "create"}),
		event("apply", map[string]string{"action": "delete"}),
	)

	err := evalAssertion(Assertion{
		Type:  AssertTraceCount,
		Stage: "apply",
		Attrs: map[string]string{"action": "create"},
		Count: 2,
	}, result)
	assert.NoError(t, err)

	err = evalAssertion(Assertion{
		Type:  AssertTraceCount,
		Stage: "apply",
		Count: 2,
	}, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched 3 events, want 2")
}

func TestEvalFinalState(t *testing.T) {
	result := &Result{
		Pass: true,
		FinalState: map[string]map[string]string{
			"network.main": {"id": "net-000001", "cidr_block": "10.0.0.0/16"},
		},
	}

	err := evalAssertion(Assertion{
		Type:     AssertFinalState,
		Resource: "network.main",
		Expect:   map[string]string{"id": "net-000001"},
	}, result)
	assert.NoError(t, err)

	err = evalAssertion(Assertion{
		Type:     AssertFinalState,
		Resource: "network.main",
		Gone:     true,
	}, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still present")

	err = evalAssertion(Assertion{
		Type:     AssertFinalState,
		Resource: "load_balancer.edge",
		Gone:     true,
	}, result)
	assert.NoError(t, err)

	err = evalAssertion(Assertion{
		Type:     AssertFinalState,
		Resource: "network.main",
		Expect:   map[string]string{"id": "net-000099"},
	}, result)
	assert.Error(t, err)
}

func TestFlattenLive(t *testing.T) {
	live := state.NewLive()
	live.Generation = 3
	key := model.Key{Type: "network", Name: "main"}
	live.Put(key, model.Attrs{
		"id":      model.StringVal("net-000001"),
		"count":   model.IntVal(2),
		"public":  model.BoolVal(true),
		"subnets": model.ListVal{model.StringVal("a"), model.StringVal("b")},
		"tags":    model.MapVal{"env": model.StringVal("sim"), "app": model.StringVal("web")},
	})

	flat := flattenLive(live)
	require.Contains(t, flat, "network.main")
	attrs := flat["network.main"]
	assert.Equal(t, "net-000001", attrs["id"])
	assert.Equal(t, "2", attrs["count"])
	assert.Equal(t, "true", attrs["public"])
	assert.Equal(t, "[a b]", attrs["subnets"])
	assert.Equal(t, "{app=web env=sim}", attrs["tags"])
}
