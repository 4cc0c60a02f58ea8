package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flotilla/internal/clock"
	"github.com/roach88/flotilla/internal/gate"
	"github.com/roach88/flotilla/internal/pipeline"
	"github.com/roach88/flotilla/internal/plan"
	"github.com/roach88/flotilla/internal/rollout"
	"github.com/roach88/flotilla/internal/secret"
	"github.com/roach88/flotilla/internal/state"
	"github.com/roach88/flotilla/internal/store"
)

// DeployResult is the JSON payload of a deployment.
type DeployResult struct {
	Token      string           `json:"token"`
	Outcome    string           `json:"outcome"`
	Revision   int              `json:"revision"`
	ImageRef   string           `json:"image_ref,omitempty"`
	Generation state.Generation `json:"generation"`
	Instances  []string         `json:"instances,omitempty"`
	Endpoint   string           `json:"endpoint,omitempty"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the full deployment pipeline",
		Long: `Run the full deployment pipeline.

Resolves secret bindings (from FLOTILLA_SECRET_* environment
variables), builds and publishes the task image, reconciles the
resource graph, cuts a new task definition revision, rolls the service
onto it instance by instance, and verifies the load balancer endpoint.
Old instances drain only after the new revision is serving; a stalled
rollout times out and leaves them in place.

Every attempt is recorded in the deployment history, including
failures. Infrastructure changes confirmed before a failing stage are
kept and recorded.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(rootOpts, cmd)
		},
	}

	return cmd
}

func runDeploy(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	stack, err := loadManifest(opts, formatter)
	if err != nil {
		return err
	}

	e, err := openEnv(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}
	defer e.Close()

	dep, found, err := e.Store.LoadServiceState(ctx, stack.Service.Name)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}
	if !found {
		dep = rollout.Deployment{Service: stack.Service}
	} else {
		// The manifest is authoritative for the service shape; the
		// store only remembers revision and instances.
		dep.Service = stack.Service
	}

	runtime := gate.NewMemoryRuntime()
	clk := clock.Real{}
	g := gate.New(runtime, gate.NewScriptedProbe(), clk, e.Log)
	targets := rollout.NewMemoryTargetGroup()
	controller := rollout.NewController(g, targets, runtime, clk, nil, e.Log)

	driver := pipeline.NewDriver(pipeline.Config{
		Secrets:  secret.NewInjector(secret.EnvStore{}, e.Log),
		Builder:  &pipeline.MemoryBuilder{},
		Registry: &pipeline.MemoryRegistry{},
		Applier:  plan.NewApplier(e.Providers, e.Log),
		Schemas:  e.Schemas,
		Rollout:  controller,
		Verifier: &pipeline.MemoryVerifier{},
		Log:      e.Log,
	})

	req := pipeline.Request{
		Stack:      *stack,
		Generation: e.Live.Generation + 1,
		Live:       e.Live,
		PriorOrder: e.Order,
		Deployment: dep,
	}
	out, deployErr := driver.Deploy(ctx, req)

	now := time.Now()
	if out.Apply != nil {
		if err := e.Store.SaveSnapshot(ctx, out.Live, out.Apply.Order, now); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
		}
	}
	if out.Rollout != nil && out.Rollout.Outcome == rollout.OutcomeSucceeded {
		if err := e.Store.SaveServiceState(ctx, out.Deployment); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
		}
	}

	outcome := deployOutcome(out, deployErr)
	rec := store.DeploymentRecord{
		Token:      out.Token,
		Stack:      stack.Name,
		Service:    stack.Service.Name,
		Revision:   out.Revision.Revision,
		ImageRef:   out.ImageRef,
		Outcome:    outcome,
		Generation: out.Live.Generation,
		CreatedAt:  now,
	}
	if err := e.Store.RecordDeployment(ctx, rec); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}

	if deployErr != nil {
		details := map[string]any{"token": out.Token, "outcome": outcome}
		if stage, ok := pipeline.FailedStage(deployErr); ok {
			details["stage"] = string(stage)
		}
		return formatter.fail(ExitFailure, ErrCodeDeploy, deployErr.Error(), details)
	}

	result := DeployResult{
		Token:      out.Token,
		Outcome:    outcome,
		Revision:   out.Revision.Revision,
		ImageRef:   out.ImageRef,
		Generation: out.Live.Generation,
		Endpoint:   out.Endpoint,
	}
	for _, inst := range out.Deployment.Instances {
		result.Instances = append(result.Instances, inst.ID)
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Deployed %s revision %d (%d instance(s), generation %d)\n",
		stack.Service.Name, result.Revision, len(result.Instances), result.Generation)
	if result.Endpoint != "" {
		fmt.Fprintf(formatter.Writer, "  endpoint: %s\n", result.Endpoint)
	}
	return nil
}

func deployOutcome(out *pipeline.Outcome, err error) string {
	if out.Rollout != nil {
		return string(out.Rollout.Outcome)
	}
	if err != nil {
		return string(rollout.OutcomeFailed)
	}
	return string(rollout.OutcomeSucceeded)
}
