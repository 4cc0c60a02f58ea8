package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfraLifecycleGolden(t *testing.T) {
	s, err := LoadScenario(scenarioPath("infra_lifecycle.yaml"))
	require.NoError(t, err)
	RunWithGolden(t, s)
}

func TestFirstDeployGolden(t *testing.T) {
	s, err := LoadScenario(scenarioPath("first_deploy.yaml"))
	require.NoError(t, err)
	RunWithGolden(t, s)
}
