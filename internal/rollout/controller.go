package rollout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/flotilla/internal/clock"
	"github.com/roach88/flotilla/internal/gate"
	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/secret"
)

const (
	// DefaultPollInterval is the stabilization poll cadence.
	DefaultPollInterval = 2 * time.Second
	// DefaultStabilizationBudget bounds the wait for all new instances to
	// report healthy target status.
	DefaultStabilizationBudget = 5 * time.Minute
)

// Launcher starts one task instance and blocks until it is Running per
// its startup gate. gate.Gate satisfies this.
type Launcher interface {
	Launch(ctx context.Context, instanceID string, td model.TaskDefinition, secrets map[string][]secret.Binding) (*gate.TaskInstance, error)
}

// Stopper stops all containers of a task instance.
type Stopper interface {
	Stop(ctx context.Context, instanceID string) error
}

// Instance is one running task instance of a service.
type Instance struct {
	ID       string `json:"id"`
	Revision int    `json:"revision"`
}

// Deployment is the running state of one service: which revision it is
// on and which instances serve it.
type Deployment struct {
	Service   model.ServiceSpec `json:"service"`
	Revision  int               `json:"revision"`
	Instances []Instance        `json:"instances"`
}

// Outcome classifies how a rollout ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeTimedOut  Outcome = "TIMED_OUT"
	OutcomeCancelled Outcome = "CANCELLED"
)

// Result is the record of one rollout attempt. Deployment holds the
// post-rollout service state; on failure or timeout it is the unchanged
// pre-rollout state, since old instances are only drained after the new
// ones stabilize.
type Result struct {
	Token      string
	Outcome    Outcome
	Deployment Deployment
	Launched   []Instance
	Drained    []string
	Failures   map[string]error
}

// Controller executes rollouts.
type Controller struct {
	launcher Launcher
	targets  TargetGroup
	stopper  Stopper
	clock    clock.Clock
	tokens   TokenGenerator
	log      *slog.Logger

	// PollInterval and StabilizationBudget are configurable for tests;
	// zero values fall back to the defaults.
	PollInterval        time.Duration
	StabilizationBudget time.Duration
}

// NewController creates a controller. A nil logger discards events; a
// nil token generator uses UUIDv7 tokens.
func NewController(launcher Launcher, targets TargetGroup, stopper Stopper, clk clock.Clock, tokens TokenGenerator, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if tokens == nil {
		tokens = UUIDTokenGenerator{}
	}
	return &Controller{
		launcher: launcher,
		targets:  targets,
		stopper:  stopper,
		clock:    clk,
		tokens:   tokens,
		log:      log,
	}
}

func (c *Controller) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

func (c *Controller) stabilizationBudget() time.Duration {
	if c.StabilizationBudget > 0 {
		return c.StabilizationBudget
	}
	return DefaultStabilizationBudget
}

// Execute rolls the deployment onto the given task definition revision.
// New instances are launched and registered first; old instances drain
// only after every new instance reports a healthy target status. A
// forced redeployment onto the same revision follows the same protocol.
//
// A launch failure on one instance does not stop the remaining
// launches; the rollout fails afterwards if fewer than the desired
// count came up. The returned Result always reflects what actually
// happened, including on error.
func (c *Controller) Execute(ctx context.Context, dep Deployment, td model.TaskDefinition, secrets map[string][]secret.Binding) (*Result, error) {
	token := c.tokens.Generate()
	res := &Result{
		Token:      token,
		Deployment: dep,
		Failures:   make(map[string]error),
	}
	desired := dep.Service.DesiredCount

	c.log.Info("rollout started",
		"stage", "rollout", "token", token, "service", dep.Service.Name,
		"from_revision", dep.Revision, "to_revision", td.Revision, "desired", desired)

	for i := 0; i < desired; i++ {
		id := fmt.Sprintf("%s-%s-%d", dep.Service.Name, token, i)
		if _, err := c.launcher.Launch(ctx, id, td, secrets); err != nil {
			if isCancellation(err) {
				res.Outcome = OutcomeCancelled
				c.log.Info("rollout cancelled",
					"stage", "rollout", "token", token, "service", dep.Service.Name, "outcome", "cancelled")
				return res, fmt.Errorf("rollout %s cancelled: %w", token, err)
			}
			res.Failures[id] = err
			c.log.Error("instance launch failed",
				"stage", "rollout", "token", token, "service", dep.Service.Name,
				"instance", id, "outcome", "failed", "error", err)
			continue
		}
		if err := c.targets.Register(ctx, id); err != nil {
			res.Failures[id] = err
			continue
		}
		res.Launched = append(res.Launched, Instance{ID: id, Revision: td.Revision})
		c.log.Info("instance launched",
			"stage", "rollout", "token", token, "service", dep.Service.Name,
			"instance", id, "revision", td.Revision, "outcome", "running")
	}

	if len(res.Launched) < desired {
		res.Outcome = OutcomeFailed
		return res, &LaunchFailedError{
			Token:    token,
			Service:  dep.Service.Name,
			Launched: len(res.Launched),
			Desired:  desired,
			Failures: res.Failures,
		}
	}

	if err := c.awaitStable(ctx, res, desired); err != nil {
		return res, err
	}

	// New revision is serving; drain the old instances.
	for _, old := range dep.Instances {
		if err := c.targets.Deregister(ctx, old.ID); err != nil {
			c.log.Error("target deregister failed",
				"stage", "rollout", "token", token, "instance", old.ID, "error", err)
		}
		if err := c.stopper.Stop(ctx, old.ID); err != nil {
			c.log.Error("instance stop failed",
				"stage", "rollout", "token", token, "instance", old.ID, "error", err)
		}
		res.Drained = append(res.Drained, old.ID)
		c.log.Info("instance drained",
			"stage", "rollout", "token", token, "service", dep.Service.Name, "instance", old.ID)
	}

	res.Deployment.Revision = td.Revision
	res.Deployment.Instances = res.Launched
	res.Outcome = OutcomeSucceeded
	c.log.Info("rollout succeeded",
		"stage", "rollout", "token", token, "service", dep.Service.Name,
		"revision", td.Revision, "outcome", "succeeded")
	return res, nil
}

// awaitStable polls target health until every launched instance is
// healthy, the budget is spent, or the context is cancelled.
func (c *Controller) awaitStable(ctx context.Context, res *Result, desired int) error {
	budget := c.stabilizationBudget()
	deadline := c.clock.Now().Add(budget)

	for {
		healthy := 0
		for _, inst := range res.Launched {
			h, err := c.targets.Health(ctx, inst.ID)
			if err != nil {
				res.Outcome = OutcomeFailed
				return fmt.Errorf("rollout %s: target health for %s: %w", res.Token, inst.ID, err)
			}
			if h == TargetHealthy {
				healthy++
			}
		}
		if healthy >= desired {
			return nil
		}
		if !c.clock.Now().Before(deadline) {
			res.Outcome = OutcomeTimedOut
			c.log.Error("rollout stalled",
				"stage", "rollout", "token", res.Token, "service", res.Deployment.Service.Name,
				"healthy", healthy, "desired", desired, "outcome", "timed_out")
			return &TimeoutError{
				Token:   res.Token,
				Service: res.Deployment.Service.Name,
				Budget:  budget,
				Healthy: healthy,
				Desired: desired,
			}
		}
		if err := c.clock.Sleep(ctx, c.pollInterval()); err != nil {
			res.Outcome = OutcomeCancelled
			return fmt.Errorf("rollout %s cancelled: %w", res.Token, err)
		}
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
