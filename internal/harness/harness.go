package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/flotilla/internal/compiler"
	"github.com/roach88/flotilla/internal/gate"
	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/pipeline"
	"github.com/roach88/flotilla/internal/plan"
	"github.com/roach88/flotilla/internal/provider"
	"github.com/roach88/flotilla/internal/rollout"
	"github.com/roach88/flotilla/internal/secret"
	"github.com/roach88/flotilla/internal/state"
	"github.com/roach88/flotilla/internal/store"
	"github.com/roach88/flotilla/internal/testutil"
)

// scenarioEpoch is the fake clock's start for every run.
var scenarioEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// StepResult is the recorded outcome of one scenario step.
type StepResult struct {
	Run string `json:"run"`
	Err string `json:"error,omitempty"`

	// Plan and apply fields.
	Summary    *plan.Summary    `json:"summary,omitempty"`
	Generation state.Generation `json:"generation,omitempty"`
	Applied    int              `json:"applied,omitempty"`
	Deleted    int              `json:"deleted,omitempty"`

	// Deploy fields.
	Token    string `json:"token,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Revision int    `json:"revision,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Errors lists expect and assertion violations. Empty when Pass.
	Errors []string `json:"errors,omitempty"`

	// Steps holds per-step results in execution order.
	Steps []StepResult `json:"steps"`

	// Trace is every structured log event the components emitted.
	Trace []TraceEvent `json:"trace"`

	// FinalState is the last recorded snapshot, resource key to
	// stringified attributes.
	FinalState map[string]map[string]string `json:"final_state"`

	// FinalGeneration is the last recorded snapshot's generation.
	FinalGeneration state.Generation `json:"final_generation"`
}

// AddError records a violation and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Harness wires one scenario's collaborators: real pipeline components
// over in-memory fakes, a fake clock, and sequenced tokens.
type Harness struct {
	stack    *model.Stack
	store    *store.Store
	clock    *testutil.FakeClock
	recorder *Recorder
	log      *slog.Logger

	provider  *provider.Memory
	providers *provider.Registry
	schemas   *model.SchemaRegistry
	applier   *plan.Applier
	driver    *pipeline.Driver
	targets   *rollout.MemoryTargetGroup
}

// Run executes a scenario and returns the result. Execution errors of
// the harness itself (unreadable manifest, broken store) are returned
// as the error; step failures and assertion violations land in the
// Result.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	ctx := context.Background()
	result := &Result{Pass: true}

	for i, step := range scenario.Steps {
		sr := h.runStep(ctx, step.Run)
		result.Steps = append(result.Steps, sr)
		checkExpect(result, i, step, sr)
	}

	result.Trace = h.recorder.Events()

	live, _, err := h.store.LoadLatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	result.FinalGeneration = live.Generation
	result.FinalState = flattenLive(live)

	for i, a := range scenario.Assertions {
		if err := evalAssertion(a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	src, err := os.ReadFile(scenario.Manifest)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	stack, err := compiler.CompileSource(scenario.Manifest, src)
	if err != nil {
		return nil, err
	}
	schemas := model.BuiltinSchemas()
	if err := stack.Validate(schemas); err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, err
	}

	recorder := NewRecorder()
	log := slog.New(recorder)
	clk := testutil.NewFakeClock(scenarioEpoch)

	secrets := secret.NewMemoryStore()
	for ref, token := range scenario.Secrets {
		secrets.Secrets[ref] = token
	}
	for _, ref := range scenario.Denied {
		secrets.Denied[ref] = true
	}

	prov := provider.NewMemory()
	for _, f := range scenario.Failures {
		key, _ := model.ParseKey(f.Resource)
		prov.FailNext(provider.Op(f.Op), key, errors.New("injected provider failure"))
	}
	providers := provider.NewRegistry()
	providers.RegisterAll(schemas, prov)

	runtime := gate.NewMemoryRuntime()
	g := gate.New(runtime, gate.NewScriptedProbe(), clk, log)
	targets := rollout.NewMemoryTargetGroup()
	for _, id := range scenario.UnhealthyTargets {
		targets.Script(id, rollout.TargetUnhealthy)
	}
	controller := rollout.NewController(g, targets, runtime, clk,
		testutil.NewSequencedTokenGenerator("ro"), log)

	applier := plan.NewApplier(providers, log)
	driver := pipeline.NewDriver(pipeline.Config{
		Secrets:  secret.NewInjector(secrets, log),
		Builder:  &pipeline.MemoryBuilder{},
		Registry: &pipeline.MemoryRegistry{},
		Applier:  applier,
		Schemas:  schemas,
		Rollout:  controller,
		Verifier: &pipeline.MemoryVerifier{},
		Tokens:   testutil.NewSequencedTokenGenerator("deploy"),
		Log:      log,
	})

	return &Harness{
		stack:     stack,
		store:     st,
		clock:     clk,
		recorder:  recorder,
		log:       log,
		provider:  prov,
		providers: providers,
		schemas:   schemas,
		applier:   applier,
		driver:    driver,
		targets:   targets,
	}, nil
}

func (h *Harness) runStep(ctx context.Context, run string) StepResult {
	switch run {
	case RunPlan:
		return h.plan(ctx)
	case RunApply:
		return h.apply(ctx)
	case RunDeploy:
		return h.deploy(ctx)
	case RunDestroy:
		return h.destroy(ctx)
	default:
		return StepResult{Run: run, Err: fmt.Sprintf("unknown run %q", run)}
	}
}

func (h *Harness) plan(ctx context.Context) StepResult {
	sr := StepResult{Run: RunPlan}
	live, order, err := h.store.LoadLatestSnapshot(ctx)
	if err != nil {
		sr.Err = err.Error()
		return sr
	}
	desired := state.Desired{Generation: live.Generation + 1, Resources: h.stack.Resources}
	p, err := plan.Compute(desired, live, h.schemas, order)
	if err != nil {
		sr.Err = err.Error()
		return sr
	}
	sr.Summary = &p.Summary
	return sr
}

func (h *Harness) apply(ctx context.Context) StepResult {
	sr := StepResult{Run: RunApply}
	live, order, err := h.store.LoadLatestSnapshot(ctx)
	if err != nil {
		sr.Err = err.Error()
		return sr
	}
	desired := state.Desired{Generation: live.Generation + 1, Resources: h.stack.Resources}
	p, err := plan.Compute(desired, live, h.schemas, order)
	if err != nil {
		sr.Err = err.Error()
		return sr
	}
	sr.Summary = &p.Summary

	res, applyErr := h.applier.Apply(ctx, desired, live, p)
	if err := h.store.SaveSnapshot(ctx, res.Live, res.Order, h.clock.Now()); err != nil {
		sr.Err = err.Error()
		return sr
	}
	sr.Generation = res.Live.Generation
	sr.Applied = len(res.Applied)
	sr.Deleted = len(res.Deleted)
	if applyErr != nil {
		sr.Err = applyErr.Error()
	}
	return sr
}

func (h *Harness) deploy(ctx context.Context) StepResult {
	sr := StepResult{Run: RunDeploy}
	live, order, err := h.store.LoadLatestSnapshot(ctx)
	if err != nil {
		sr.Err = err.Error()
		return sr
	}
	dep, found, err := h.store.LoadServiceState(ctx, h.stack.Service.Name)
	if err != nil {
		sr.Err = err.Error()
		return sr
	}
	if !found {
		dep = rollout.Deployment{Service: h.stack.Service}
	} else {
		dep.Service = h.stack.Service
	}

	out, deployErr := h.driver.Deploy(ctx, pipeline.Request{
		Stack:      *h.stack,
		Generation: live.Generation + 1,
		Live:       live,
		PriorOrder: order,
		Deployment: dep,
	})

	if out.Apply != nil {
		if err := h.store.SaveSnapshot(ctx, out.Live, out.Apply.Order, h.clock.Now()); err != nil {
			sr.Err = err.Error()
			return sr
		}
	}
	if out.Rollout != nil && out.Rollout.Outcome == rollout.OutcomeSucceeded {
		if err := h.store.SaveServiceState(ctx, out.Deployment); err != nil {
			sr.Err = err.Error()
			return sr
		}
	}

	outcome := string(rollout.OutcomeSucceeded)
	if out.Rollout != nil {
		outcome = string(out.Rollout.Outcome)
	} else if deployErr != nil {
		outcome = string(rollout.OutcomeFailed)
	}
	rec := store.DeploymentRecord{
		Token:      out.Token,
		Stack:      h.stack.Name,
		Service:    h.stack.Service.Name,
		Revision:   out.Revision.Revision,
		ImageRef:   out.ImageRef,
		Outcome:    outcome,
		Generation: out.Live.Generation,
		CreatedAt:  h.clock.Now(),
	}
	if err := h.store.RecordDeployment(ctx, rec); err != nil {
		sr.Err = err.Error()
		return sr
	}

	sr.Token = out.Token
	sr.Outcome = outcome
	sr.Revision = out.Revision.Revision
	sr.Endpoint = out.Endpoint
	sr.Generation = out.Live.Generation
	if deployErr != nil {
		sr.Err = deployErr.Error()
		if stage, ok := pipeline.FailedStage(deployErr); ok {
			sr.Stage = string(stage)
		}
	}
	return sr
}

func (h *Harness) destroy(ctx context.Context) StepResult {
	sr := StepResult{Run: RunDestroy}
	live, order, err := h.store.LoadLatestSnapshot(ctx)
	if err != nil {
		sr.Err = err.Error()
		return sr
	}
	desired := state.Desired{Generation: live.Generation + 1, Resources: model.NewResourceSet()}
	p, err := plan.Compute(desired, live, h.schemas, order)
	if err != nil {
		sr.Err = err.Error()
		return sr
	}

	res, applyErr := h.applier.Apply(ctx, desired, live, p)
	// A partial destroy keeps the surviving slice of the recorded order
	// so the next attempt still tears down in the right sequence.
	var remaining []model.Key
	for _, k := range order {
		if res.Live.Contains(k) {
			remaining = append(remaining, k)
		}
	}
	if err := h.store.SaveSnapshot(ctx, res.Live, remaining, h.clock.Now()); err != nil {
		sr.Err = err.Error()
		return sr
	}
	sr.Generation = res.Live.Generation
	sr.Deleted = len(res.Deleted)
	if applyErr != nil {
		sr.Err = applyErr.Error()
	}
	return sr
}
