package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScenario(t *testing.T, name string) *Result {
	t.Helper()
	s, err := LoadScenario(scenarioPath(name))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

func TestMissingSecretScenario(t *testing.T) {
	result := runScenario(t, "missing_secret.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 1)
	sr := result.Steps[0]
	assert.Contains(t, sr.Err, "SECRET_NOT_FOUND")
	assert.Equal(t, "secrets", sr.Stage)
	assert.Equal(t, "FAILED", sr.Outcome)
	// The pipeline stops before reconcile, so nothing is provisioned.
	assert.Empty(t, result.FinalState)
}

func TestRolloutTimeoutScenario(t *testing.T) {
	result := runScenario(t, "rollout_timeout.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 1)
	sr := result.Steps[0]
	assert.Contains(t, sr.Err, "timed out")
	assert.Equal(t, "rollout", sr.Stage)
	assert.Equal(t, "TIMED_OUT", sr.Outcome)
	// Infrastructure was reconciled before the rollout stalled.
	assert.Contains(t, result.FinalState, "load_balancer.edge")
}

func TestGatedDeployScenario(t *testing.T) {
	result := runScenario(t, "gated_deploy.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 1)
	sr := result.Steps[0]
	assert.Empty(t, sr.Err)
	assert.Equal(t, "SUCCEEDED", sr.Outcome)
	assert.Equal(t, 1, sr.Revision)
}

func TestExpectMismatchFailsScenario(t *testing.T) {
	s, err := LoadScenario(scenarioPath("first_deploy.yaml"))
	require.NoError(t, err)
	// Sabotage the expectation so the run reports a violation.
	s.Steps[0].Expect.Endpoint = "wrong.example"

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "endpoint")
}

func TestProviderFaultSurfacesInApply(t *testing.T) {
	s, err := LoadScenario(scenarioPath("infra_lifecycle.yaml"))
	require.NoError(t, err)
	s.Failures = []FaultSpec{{Op: "create", Resource: "network.main"}}
	// Drop the expect clauses and assertions: the fault changes every
	// downstream count.
	for i := range s.Steps {
		s.Steps[i].Expect = nil
	}
	s.Assertions = nil

	result, err := Run(s)
	require.NoError(t, err)
	require.NotEmpty(t, result.Steps)

	var applyStep *StepResult
	for i := range result.Steps {
		if result.Steps[i].Run == RunApply {
			applyStep = &result.Steps[i]
			break
		}
	}
	require.NotNil(t, applyStep)
	assert.Contains(t, applyStep.Err, "injected provider failure")
	// The dependent load balancer is skipped when the network fails.
	assert.NotContains(t, result.FinalState, "network.main")
	assert.NotContains(t, result.FinalState, "load_balancer.edge")
}
