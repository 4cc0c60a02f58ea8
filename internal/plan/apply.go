package plan

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/provider"
	"github.com/roach88/flotilla/internal/state"
)

// Result reports what a pass actually did. On failure it still carries the
// partial completion set and the snapshot reflecting only confirmed
// resources.
type Result struct {
	// Applied lists resources confirmed created/updated/replaced, in
	// execution order.
	Applied []model.Key
	// Deleted lists resources confirmed deleted, in execution order.
	Deleted []model.Key
	// Live is the resulting snapshot. Updated atomically per completed
	// action: a resource appears (or disappears) only after its provider
	// call succeeded.
	Live state.Live
	// Order is the apply order of the desired set, for recording.
	Order []model.Key
}

// Applier executes plans through the provider registry.
type Applier struct {
	Providers *provider.Registry
	Log       *slog.Logger
}

// NewApplier creates an applier. A nil logger discards events.
func NewApplier(providers *provider.Registry, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Applier{Providers: providers, Log: log}
}

// Apply executes the plan against the given live snapshot.
//
// Fail-fast: the first failing action halts the pass. The returned Result
// reflects everything confirmed before the failure; the error is a
// ReconciliationError naming the resource and action. Already-applied
// resources are not rolled back.
//
// Context cancellation between actions stops the pass the same way,
// propagating ctx.Err.
func (a *Applier) Apply(ctx context.Context, desired state.Desired, live state.Live, p *Plan) (*Result, error) {
	next := live.Clone()
	next.Generation = desired.Generation
	res := &Result{Live: next, Order: p.Order}

	for _, c := range p.Changes {
		if err := ctx.Err(); err != nil {
			return res, &ReconciliationError{Key: c.Key, Action: c.Action, Err: err}
		}
		if c.Action == ActionNoOp {
			a.Log.Debug("reconcile", "stage", "apply", "resource", c.Key.String(), "action", string(c.Action), "outcome", "skipped")
			continue
		}
		if err := a.applyChange(ctx, desired, next, res, c); err != nil {
			a.Log.Error("reconcile", "stage", "apply", "resource", c.Key.String(), "action", string(c.Action), "outcome", "failed", "error", err)
			return res, &ReconciliationError{Key: c.Key, Action: c.Action, Err: err}
		}
		a.Log.Info("reconcile", "stage", "apply", "resource", c.Key.String(), "action", string(c.Action), "outcome", "applied")
	}

	return res, nil
}

func (a *Applier) applyChange(ctx context.Context, desired state.Desired, next state.Live, res *Result, c Change) error {
	handler, err := a.Providers.For(c.Key.Type)
	if err != nil {
		return err
	}

	switch c.Action {
	case ActionCreate:
		return a.create(ctx, handler, desired, next, res, c.Key)

	case ActionUpdate:
		r, _ := desired.Resources.Get(c.Key)
		resolved, err := next.ResolveRefs(r.Attrs)
		if err != nil {
			return err
		}
		liveAttrs, err := handler.Update(ctx, c.Key, resolved)
		if err != nil {
			return err
		}
		next.Put(c.Key, liveAttrs)
		res.Applied = append(res.Applied, c.Key)
		return nil

	case ActionReplace:
		// Delete-then-create. The snapshot drops the old attributes only
		// after the delete is confirmed, and gains the new ones only after
		// the create is confirmed - a failure in between leaves the
		// snapshot honest about the gap.
		if err := handler.Delete(ctx, c.Key); err != nil {
			return err
		}
		next.Remove(c.Key)
		return a.create(ctx, handler, desired, next, res, c.Key)

	case ActionDelete:
		if err := handler.Delete(ctx, c.Key); err != nil {
			return err
		}
		next.Remove(c.Key)
		res.Deleted = append(res.Deleted, c.Key)
		return nil

	default:
		return nil
	}
}

func (a *Applier) create(ctx context.Context, handler provider.Handler, desired state.Desired, next state.Live, res *Result, k model.Key) error {
	r, _ := desired.Resources.Get(k)
	resolved, err := next.ResolveRefs(r.Attrs)
	if err != nil {
		return err
	}
	liveAttrs, err := handler.Create(ctx, k, resolved)
	if err != nil {
		return err
	}
	next.Put(k, liveAttrs)
	res.Applied = append(res.Applied, k)
	return nil
}

// Runner enforces single-flight reconciliation per generation.
type Runner struct {
	mu       sync.Mutex
	inflight map[state.Generation]bool
}

// NewRunner creates a runner with no passes in flight.
func NewRunner() *Runner {
	return &Runner{inflight: make(map[state.Generation]bool)}
}

// Do runs fn while holding the single-flight slot for gen. A concurrent
// call for the same generation fails immediately with an InFlightError
// rather than queueing.
func (r *Runner) Do(gen state.Generation, fn func() error) error {
	r.mu.Lock()
	if r.inflight[gen] {
		r.mu.Unlock()
		return &InFlightError{Generation: gen}
	}
	r.inflight[gen] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, gen)
		r.mu.Unlock()
	}()
	return fn()
}
