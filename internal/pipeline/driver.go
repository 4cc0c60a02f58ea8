package pipeline

import (
	"context"
	"log/slog"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/plan"
	"github.com/roach88/flotilla/internal/rollout"
	"github.com/roach88/flotilla/internal/secret"
	"github.com/roach88/flotilla/internal/state"
)

// Config wires the driver's collaborators.
type Config struct {
	Secrets  *secret.Injector
	Builder  Builder
	Registry ImageRegistry
	Applier  *plan.Applier
	Schemas  *model.SchemaRegistry
	Rollout  *rollout.Controller
	Verifier Verifier
	Runner   *plan.Runner
	Tokens   rollout.TokenGenerator
	Log      *slog.Logger
}

// Driver sequences one deployment through its stages.
type Driver struct {
	cfg Config
	log *slog.Logger
}

// NewDriver creates a driver. A nil logger discards events, a nil token
// generator uses UUIDv7 tokens, a nil runner gets a fresh single-flight
// runner.
func NewDriver(cfg Config) *Driver {
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.DiscardHandler)
	}
	if cfg.Tokens == nil {
		cfg.Tokens = rollout.UUIDTokenGenerator{}
	}
	if cfg.Runner == nil {
		cfg.Runner = plan.NewRunner()
	}
	return &Driver{cfg: cfg, log: cfg.Log}
}

// Request is the input snapshot for one deployment: the compiled stack,
// the generation being deployed, the current live state and recorded
// apply order, and the service's current deployment.
type Request struct {
	Stack      model.Stack
	Generation state.Generation
	Live       state.Live
	PriorOrder []model.Key
	Deployment rollout.Deployment
}

// Outcome records what each stage produced. On error it carries
// everything completed before the failing stage.
type Outcome struct {
	Token      string
	Image      string
	ImageRef   string
	Plan       *plan.Plan
	Apply      *plan.Result
	Live       state.Live
	Revision   model.TaskDefinition
	Rollout    *rollout.Result
	Deployment rollout.Deployment
	Endpoint   string
}

// Deploy runs the full pipeline for one request. Stages execute in
// order with fail-fast abort; secrets resolve before the build so a bad
// reference produces no build or publish side effects. Reconciliation
// is single-flight per generation.
func (d *Driver) Deploy(ctx context.Context, req Request) (*Outcome, error) {
	token := d.cfg.Tokens.Generate()
	out := &Outcome{Token: token, Live: req.Live, Deployment: req.Deployment}

	d.log.Info("deploy started",
		"stage", "pipeline", "token", token, "stack", req.Stack.Name,
		"service", req.Stack.Service.Name, "generation", int64(req.Generation))

	bindings, err := d.cfg.Secrets.Inject(ctx, req.Stack.Task)
	if err != nil {
		return out, d.fail(out, StageSecrets, err)
	}

	image, err := d.cfg.Builder.Build(ctx, req.Stack)
	if err != nil {
		return out, d.fail(out, StageBuild, err)
	}
	out.Image = image
	d.log.Info("image built", "stage", string(StageBuild), "token", token, "image", image, "outcome", "built")

	ref, err := d.cfg.Registry.Publish(ctx, image)
	if err != nil {
		return out, d.fail(out, StagePublish, err)
	}
	out.ImageRef = ref
	d.log.Info("image published", "stage", string(StagePublish), "token", token, "image_ref", ref, "outcome", "published")

	desired := state.Desired{Generation: req.Generation, Resources: req.Stack.Resources}
	err = d.cfg.Runner.Do(req.Generation, func() error {
		p, err := plan.Compute(desired, req.Live, d.cfg.Schemas, req.PriorOrder)
		if err != nil {
			return err
		}
		out.Plan = p
		res, applyErr := d.cfg.Applier.Apply(ctx, desired, req.Live, p)
		if res != nil {
			out.Apply = res
			out.Live = res.Live
		}
		return applyErr
	})
	if err != nil {
		return out, d.fail(out, StageReconcile, err)
	}

	td := req.Stack.Task.NewRevision(ref)
	td.Revision = req.Deployment.Revision + 1
	out.Revision = td
	d.log.Info("revision cut",
		"stage", string(StageRevise), "token", token, "family", td.Family, "revision", td.Revision)

	rres, err := d.cfg.Rollout.Execute(ctx, req.Deployment, td, bindings)
	if rres != nil {
		out.Rollout = rres
		out.Deployment = rres.Deployment
	}
	if err != nil {
		return out, d.fail(out, StageRollout, err)
	}

	out.Endpoint = serviceEndpoint(out.Live)
	if out.Endpoint != "" {
		if err := d.cfg.Verifier.Verify(ctx, out.Endpoint); err != nil {
			return out, d.fail(out, StageVerify, err)
		}
		d.log.Info("endpoint verified",
			"stage", string(StageVerify), "token", token, "endpoint", out.Endpoint, "outcome", "verified")
	}

	d.log.Info("deploy succeeded",
		"stage", "pipeline", "token", token, "stack", req.Stack.Name,
		"revision", td.Revision, "outcome", "succeeded")
	return out, nil
}

func (d *Driver) fail(out *Outcome, stage Stage, err error) error {
	d.log.Error("deploy aborted",
		"stage", string(stage), "token", out.Token, "outcome", "failed", "error", err)
	return &StageError{Stage: stage, Token: out.Token, Err: err}
}

// serviceEndpoint finds the externally reachable endpoint in the live
// snapshot: the first load balancer's dns_name, in key order.
func serviceEndpoint(live state.Live) string {
	for _, k := range live.Keys() {
		if k.Type != "load_balancer" {
			continue
		}
		attrs, _ := live.Get(k)
		if s, ok := attrs["dns_name"].(model.StringVal); ok {
			return string(s)
		}
	}
	return ""
}
