package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/testutil"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testHealthCheck() *model.HealthCheck {
	return &model.HealthCheck{
		Command:     []string{"CMD-SHELL", "curl -f http://localhost:8080/healthz"},
		Interval:    5 * time.Second,
		Timeout:     2 * time.Second,
		Retries:     3,
		StartPeriod: 10 * time.Second,
	}
}

func newTestGate() (*Gate, *MemoryRuntime, *ScriptedProbe, *testutil.FakeClock) {
	rt := NewMemoryRuntime()
	probe := NewScriptedProbe()
	clk := testutil.NewFakeClock(t0)
	g := New(rt, probe, clk, nil)
	g.PollInterval = 1 * time.Second
	return g, rt, probe, clk
}

func gatedTask() model.TaskDefinition {
	return model.TaskDefinition{
		Family:   "trader",
		Revision: 3,
		Containers: []model.ContainerSpec{
			{
				Name:      "model-server",
				Image:     "registry.sim/trader/model-server:v3",
				Essential: true,
				Health:    testHealthCheck(),
			},
			{
				Name:      "app",
				Image:     "registry.sim/trader/app:v3",
				Essential: true,
				DependsOn: []model.DependsOn{
					{Container: "model-server", Condition: model.ConditionHealthy},
				},
			},
		},
	}
}

func TestLaunchHoldsDependentUntilHealthy(t *testing.T) {
	g, rt, _, clk := newTestGate()

	inst, err := g.Launch(context.Background(), "inst-1", gatedTask(), nil)
	require.NoError(t, err)

	assert.Equal(t, TaskRunning, inst.State())
	assert.Equal(t, StateHealthy, inst.ContainerState("model-server"))
	assert.Equal(t, StateRunning, inst.ContainerState("app"))
	assert.Equal(t, []string{"model-server", "app"}, rt.StartOrder("inst-1"))

	// The first probe is due one interval after start; the gate polled
	// until then before releasing the dependent.
	assert.Equal(t, t0.Add(5*time.Second), clk.Now())
}

func TestLaunchFailsWhenDependencyExhaustsRetries(t *testing.T) {
	g, rt, probe, _ := newTestGate()
	probe.Script("model-server", errors.New("connection refused"))

	inst, err := g.Launch(context.Background(), "inst-1", gatedTask(), nil)
	require.Error(t, err)
	require.True(t, IsTimeoutError(err))

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "inst-1", te.Instance)
	assert.Equal(t, "app", te.Container)
	assert.Equal(t, "model-server", te.Dependency)
	assert.Equal(t, model.ConditionHealthy, te.Condition)
	assert.Equal(t, 25*time.Second, te.Budget)

	assert.Equal(t, TaskFailed, inst.State())
	assert.Equal(t, StateUnhealthy, inst.ContainerState("model-server"))
	assert.Equal(t, StatePending, inst.ContainerState("app"))
	assert.Equal(t, []string{"model-server"}, rt.StartOrder("inst-1"))
}

func TestLaunchRejectsUnknownDependency(t *testing.T) {
	g, rt, _, _ := newTestGate()
	td := gatedTask()
	td.Containers[1].DependsOn[0].Container = "ghost"

	inst, err := g.Launch(context.Background(), "inst-1", td, nil)
	require.Error(t, err)
	require.True(t, IsLaunchError(err))

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "inst-1", le.Instance)
	assert.Equal(t, "app", le.Container)
	assert.Contains(t, err.Error(), `unknown container "ghost"`)

	assert.Equal(t, TaskFailed, inst.State())
	assert.Equal(t, []string{"model-server"}, rt.StartOrder("inst-1"),
		"the dependent must never start on an unsatisfiable dependency")
}

func TestLaunchRecoversAfterStartPeriodFailures(t *testing.T) {
	g, _, probe, clk := newTestGate()
	probe.Script("model-server", errors.New("warming up"), nil)

	inst, err := g.Launch(context.Background(), "inst-1", gatedTask(), nil)
	require.NoError(t, err)

	assert.Equal(t, TaskRunning, inst.State())
	assert.Equal(t, StateHealthy, inst.ContainerState("model-server"))
	// Failed probe at +5s falls in the start period; the pass at +10s
	// released the dependent.
	assert.Equal(t, t0.Add(10*time.Second), clk.Now())
}

func TestLaunchSuccessCondition(t *testing.T) {
	td := model.TaskDefinition{
		Family: "trader",
		Containers: []model.ContainerSpec{
			{Name: "migrate", Image: "registry.sim/trader/migrate:v3"},
			{
				Name:      "app",
				Image:     "registry.sim/trader/app:v3",
				Essential: true,
				DependsOn: []model.DependsOn{
					{Container: "migrate", Condition: model.ConditionSuccess},
				},
			},
		},
	}

	g, rt, _, clk := newTestGate()
	rt.ExitOnStart("migrate", 0)

	inst, err := g.Launch(context.Background(), "inst-1", td, nil)
	require.NoError(t, err)

	assert.Equal(t, TaskRunning, inst.State())
	assert.Equal(t, StateStopped, inst.ContainerState("migrate"))
	assert.Equal(t, 0, inst.ContainerExitCode("migrate"))
	assert.Equal(t, StateRunning, inst.ContainerState("app"))
	assert.Equal(t, t0, clk.Now(), "no polling needed once the init container exited")
}

func TestLaunchSuccessConditionNonZeroExit(t *testing.T) {
	td := model.TaskDefinition{
		Family: "trader",
		Containers: []model.ContainerSpec{
			{Name: "migrate", Image: "registry.sim/trader/migrate:v3"},
			{
				Name:      "app",
				Image:     "registry.sim/trader/app:v3",
				DependsOn: []model.DependsOn{
					{Container: "migrate", Condition: model.ConditionSuccess},
				},
			},
		},
	}

	g, rt, _, _ := newTestGate()
	rt.ExitOnStart("migrate", 1)

	inst, err := g.Launch(context.Background(), "inst-1", td, nil)
	require.True(t, IsTimeoutError(err))

	assert.Equal(t, TaskFailed, inst.State())
	assert.Equal(t, 1, inst.ContainerExitCode("migrate"))
	assert.Equal(t, StatePending, inst.ContainerState("app"))
}

func TestLaunchCompleteConditionNeverSatisfied(t *testing.T) {
	td := model.TaskDefinition{
		Family: "trader",
		Containers: []model.ContainerSpec{
			{Name: "worker", Image: "registry.sim/trader/worker:v3"},
			{
				Name:      "report",
				Image:     "registry.sim/trader/report:v3",
				DependsOn: []model.DependsOn{
					{Container: "worker", Condition: model.ConditionComplete},
				},
			},
		},
	}

	g, _, _, _ := newTestGate()
	g.Budget = 3 * time.Second

	inst, err := g.Launch(context.Background(), "inst-1", td, nil)
	require.True(t, IsTimeoutError(err))

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3*time.Second, te.Budget, "dependency without a health check uses the gate default")
	assert.Equal(t, TaskFailed, inst.State())
}

func TestLaunchStartFailure(t *testing.T) {
	g, rt, _, _ := newTestGate()
	rt.FailStart("app", errors.New("image pull failed"))

	td := model.TaskDefinition{
		Family: "trader",
		Containers: []model.ContainerSpec{
			{Name: "app", Image: "registry.sim/trader/app:v3", Essential: true},
		},
	}

	inst, err := g.Launch(context.Background(), "inst-1", td, nil)
	require.True(t, IsLaunchError(err))

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "inst-1", le.Instance)
	assert.Equal(t, "app", le.Container)
	assert.Equal(t, TaskFailed, inst.State())
}

func TestLaunchCancelled(t *testing.T) {
	g, _, _, _ := newTestGate()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inst, err := g.Launch(ctx, "inst-1", gatedTask(), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeoutError(err))

	assert.Equal(t, TaskCancelled, inst.State())
	assert.Equal(t, StatePending, inst.ContainerState("app"))
}

func TestLaunchWaitsForOwnHealthAfterStart(t *testing.T) {
	td := model.TaskDefinition{
		Family: "trader",
		Containers: []model.ContainerSpec{
			{
				Name:      "app",
				Image:     "registry.sim/trader/app:v3",
				Essential: true,
				Health:    testHealthCheck(),
			},
		},
	}

	g, _, probe, clk := newTestGate()
	probe.Script("app", errors.New("starting"), nil)

	inst, err := g.Launch(context.Background(), "inst-1", td, nil)
	require.NoError(t, err)

	assert.Equal(t, TaskRunning, inst.State())
	assert.Equal(t, StateHealthy, inst.ContainerState("app"))
	assert.Equal(t, t0.Add(10*time.Second), clk.Now())
}

func TestLaunchFailsWhenMonitoredContainerStops(t *testing.T) {
	td := model.TaskDefinition{
		Family: "trader",
		Containers: []model.ContainerSpec{
			{
				Name:      "app",
				Image:     "registry.sim/trader/app:v3",
				Essential: true,
				Health:    testHealthCheck(),
			},
		},
	}

	g, rt, _, _ := newTestGate()
	rt.ExitOnStart("app", 137)

	inst, err := g.Launch(context.Background(), "inst-1", td, nil)
	require.True(t, IsLaunchError(err))

	assert.Equal(t, TaskFailed, inst.State())
	assert.Equal(t, StateStopped, inst.ContainerState("app"))
	assert.Equal(t, 137, inst.ContainerExitCode("app"))
}

func TestHealthMonitorCadence(t *testing.T) {
	hc := *testHealthCheck()
	m := NewHealthMonitor(hc, t0)

	assert.False(t, m.Due(t0))
	assert.False(t, m.Due(t0.Add(4*time.Second)))
	assert.True(t, m.Due(t0.Add(5*time.Second)))

	m.Observe(t0.Add(5*time.Second), true)
	assert.False(t, m.Due(t0.Add(9*time.Second)))
	assert.True(t, m.Due(t0.Add(10*time.Second)))
}

func TestHealthMonitorStartPeriodGrace(t *testing.T) {
	hc := *testHealthCheck()
	m := NewHealthMonitor(hc, t0)

	// Failures inside the 10s start period never count.
	assert.Equal(t, HealthUnknown, m.Observe(t0.Add(5*time.Second), false))
	assert.Equal(t, 0, m.FailStreak())

	assert.Equal(t, HealthUnknown, m.Observe(t0.Add(10*time.Second), false))
	assert.Equal(t, 1, m.FailStreak())
	assert.Equal(t, HealthUnknown, m.Observe(t0.Add(15*time.Second), false))
	assert.Equal(t, HealthUnhealthy, m.Observe(t0.Add(20*time.Second), false))
}

func TestHealthMonitorRecovery(t *testing.T) {
	hc := *testHealthCheck()
	m := NewHealthMonitor(hc, t0)

	m.Observe(t0.Add(10*time.Second), false)
	m.Observe(t0.Add(15*time.Second), false)
	assert.Equal(t, 2, m.FailStreak())

	assert.Equal(t, HealthHealthy, m.Observe(t0.Add(20*time.Second), true))
	assert.Equal(t, 0, m.FailStreak())
}
