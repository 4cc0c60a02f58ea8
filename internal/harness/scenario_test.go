package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioPath(name string) string {
	return filepath.Join("testdata", "scenarios", name)
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	// A manifest next to the scenario so path validation passes.
	manifest := filepath.Join(dir, "stack.cue")
	require.NoError(t, os.WriteFile(manifest, []byte("stack: {}"), 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(scenarioPath("first_deploy.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "first_deploy", s.Name)
	assert.Equal(t, "tok-1", s.Secrets["secret.trader_api_key"])
	require.Len(t, s.Steps, 1)
	assert.Equal(t, RunDeploy, s.Steps[0].Run)
	require.NotNil(t, s.Steps[0].Expect)
	assert.Equal(t, "SUCCEEDED", s.Steps[0].Expect.Outcome)
	// Manifest path resolves relative to the scenario file.
	assert.FileExists(t, s.Manifest)
}

func TestLoadScenarioUnknownFieldRejected(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "unknown field"
manifest: stack.cue
steps:
  - run: plan
assertion:
  - type: trace_count
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse scenario")
}

func TestLoadScenarioMissingManifest(t *testing.T) {
	path := writeScenario(t, `
name: missing
description: "manifest does not exist"
manifest: absent.cue
steps:
  - run: plan
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest not found")
}

func TestLoadScenarioUnknownRun(t *testing.T) {
	path := writeScenario(t, `
name: bad_run
description: "unsupported step"
manifest: stack.cue
steps:
  - run: teleport
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown run "teleport"`)
}

func TestLoadScenarioBadAssertion(t *testing.T) {
	path := writeScenario(t, `
name: bad_assertion
description: "assertion without a type"
manifest: stack.cue
steps:
  - run: plan
assertions:
  - stage: apply
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type is required")
}

func TestLoadScenarioBadFailureOp(t *testing.T) {
	path := writeScenario(t, `
name: bad_failure
description: "failure with an unknown op"
manifest: stack.cue
steps:
  - run: apply
failures:
  - op: explode
    resource: network.main
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown op "explode"`)
}
