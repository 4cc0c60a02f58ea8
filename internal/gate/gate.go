package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/flotilla/internal/clock"
	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/secret"
)

const (
	// DefaultPollInterval is the gate's poll loop cadence.
	DefaultPollInterval = 1 * time.Second
	// DefaultBudget bounds waits on dependencies without a health check.
	DefaultBudget = 2 * time.Minute
)

// Gate launches task instances, enforcing inter-container startup
// ordering through health-check-derived readiness.
type Gate struct {
	runtime Runtime
	probe   ProbeExecutor
	clock   clock.Clock
	log     *slog.Logger

	// PollInterval and Budget are configurable for tests; zero values
	// fall back to the defaults.
	PollInterval time.Duration
	Budget       time.Duration
}

// New creates a gate. A nil logger discards events.
func New(rt Runtime, probe ProbeExecutor, clk clock.Clock, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Gate{runtime: rt, probe: probe, clock: clk, log: log}
}

func (g *Gate) pollInterval() time.Duration {
	if g.PollInterval > 0 {
		return g.PollInterval
	}
	return DefaultPollInterval
}

func (g *Gate) defaultBudget() time.Duration {
	if g.Budget > 0 {
		return g.Budget
	}
	return DefaultBudget
}

// Launch starts every container of the task definition in declaration
// order, holding each container until its dependsOn conditions are
// satisfied, then waits for all health-checked containers to reach
// Healthy. On success the returned instance is Running.
//
// A dependency that never satisfies its condition within
// startPeriod + retries x interval leaves the instance Failed and
// returns a TimeoutError. Context cancellation marks the instance
// Cancelled instead and propagates ctx.Err().
func (g *Gate) Launch(ctx context.Context, instanceID string, td model.TaskDefinition, secrets map[string][]secret.Binding) (*TaskInstance, error) {
	inst := newTaskInstance(instanceID, td)

	for _, c := range td.Containers {
		for _, dep := range c.DependsOn {
			if err := g.waitCondition(ctx, inst, td, c, dep); err != nil {
				return inst, err
			}
		}

		inst.setContainerState(c.Name, StateStarting)
		if err := g.runtime.Start(ctx, instanceID, c, secrets[c.Name]); err != nil {
			inst.setTaskState(TaskFailed)
			g.log.Error("container start failed",
				"stage", "gate", "instance", instanceID, "container", c.Name, "outcome", "failed", "error", err)
			return inst, &LaunchError{Instance: instanceID, Container: c.Name, Err: err}
		}
		inst.setContainerState(c.Name, StateRunning)
		if c.Health != nil {
			inst.monitors[c.Name] = NewHealthMonitor(*c.Health, g.clock.Now())
		}
		g.log.Info("container started",
			"stage", "gate", "instance", instanceID, "container", c.Name, "outcome", "running")
	}

	// Every container is up; hold until health-checked ones are Healthy.
	for _, c := range td.Containers {
		if c.Health == nil {
			continue
		}
		if err := g.waitHealthy(ctx, inst, td, c); err != nil {
			return inst, err
		}
	}

	inst.setTaskState(TaskRunning)
	g.log.Info("task instance running",
		"stage", "gate", "instance", instanceID, "revision", td.Revision, "outcome", "running")
	return inst, nil
}

// waitCondition blocks until dep's condition is met, the budget runs out,
// or the condition becomes impossible.
func (g *Gate) waitCondition(ctx context.Context, inst *TaskInstance, td model.TaskDefinition, waiting model.ContainerSpec, dep model.DependsOn) error {
	depSpec, ok := td.Container(dep.Container)
	if !ok {
		// An unvalidated task definition can name a dependency the task
		// does not carry; refuse it rather than wait on a container that
		// can never exist.
		inst.setTaskState(TaskFailed)
		return &LaunchError{
			Instance:  inst.ID,
			Container: waiting.Name,
			Err:       fmt.Errorf("depends on unknown container %q", dep.Container),
		}
	}
	budget := depSpec.StartBudget()
	if budget == 0 {
		budget = g.defaultBudget()
	}
	deadline := g.clock.Now().Add(budget)

	for {
		if err := g.step(ctx, inst, td.Containers); err != nil {
			return err
		}

		status := inst.snapshot(dep.Container)
		if conditionMet(dep.Condition, status) {
			return nil
		}
		if conditionImpossible(dep.Condition, status) || !g.clock.Now().Before(deadline) {
			inst.setTaskState(TaskFailed)
			g.log.Error("startup gate timeout",
				"stage", "gate", "instance", inst.ID, "container", waiting.Name,
				"dependency", dep.Container, "condition", string(dep.Condition), "outcome", "failed")
			return &TimeoutError{
				Instance:   inst.ID,
				Container:  waiting.Name,
				Dependency: dep.Container,
				Condition:  dep.Condition,
				Budget:     budget,
			}
		}

		if err := g.clock.Sleep(ctx, g.pollInterval()); err != nil {
			inst.setTaskState(TaskCancelled)
			return fmt.Errorf("startup gate cancelled on instance %s: %w", inst.ID, err)
		}
	}
}

// waitHealthy blocks until the container's monitor reports Healthy.
func (g *Gate) waitHealthy(ctx context.Context, inst *TaskInstance, td model.TaskDefinition, c model.ContainerSpec) error {
	budget := c.StartBudget()
	deadline := g.clock.Now().Add(budget)

	for {
		if err := g.step(ctx, inst, td.Containers); err != nil {
			return err
		}

		status := inst.snapshot(c.Name)
		if status.State == StateHealthy {
			return nil
		}
		if status.State == StateStopped || status.State == StateUnhealthy || !g.clock.Now().Before(deadline) {
			inst.setTaskState(TaskFailed)
			return &LaunchError{
				Instance:  inst.ID,
				Container: c.Name,
				Err:       fmt.Errorf("never reached HEALTHY within %s", budget),
			}
		}

		if err := g.clock.Sleep(ctx, g.pollInterval()); err != nil {
			inst.setTaskState(TaskCancelled)
			return fmt.Errorf("startup gate cancelled on instance %s: %w", inst.ID, err)
		}
	}
}

// step advances the instance one poll tick: refresh runtime status for
// every started container, then run whatever probes are due.
func (g *Gate) step(ctx context.Context, inst *TaskInstance, containers []model.ContainerSpec) error {
	now := g.clock.Now()
	for _, c := range containers {
		status := inst.snapshot(c.Name)
		if !status.State.started() || status.State == StateStopped {
			continue
		}

		rs, err := g.runtime.Status(ctx, inst.ID, c.Name)
		if err != nil {
			return &LaunchError{Instance: inst.ID, Container: c.Name, Err: err}
		}
		if rs.Exited {
			inst.setStopped(c.Name, rs.ExitCode)
			g.log.Info("container stopped",
				"stage", "gate", "instance", inst.ID, "container", c.Name, "exit_code", rs.ExitCode)
			continue
		}

		m, monitored := inst.monitors[c.Name]
		if !monitored || !m.Due(now) {
			continue
		}
		probeErr := g.probe.Probe(ctx, inst.ID, c.Name, *c.Health)
		switch m.Observe(now, probeErr == nil) {
		case HealthHealthy:
			inst.setContainerState(c.Name, StateHealthy)
		case HealthUnhealthy:
			inst.setContainerState(c.Name, StateUnhealthy)
			g.log.Warn("container unhealthy",
				"stage", "gate", "instance", inst.ID, "container", c.Name, "fail_streak", m.FailStreak())
		}
	}
	return nil
}
