// Package secret resolves declared secret bindings to opaque runtime
// handles at deployment time. The resolved secret value never enters the
// resource model, logs, or diff output - only the reference and an opaque
// handle token survive.
//
// Resolution is a pre-flight step: a missing or forbidden secret aborts
// the deployment before any container is started, since a container
// started without a required credential is worse than one that never
// starts.
package secret

import (
	"context"
	"log/slog"

	"github.com/roach88/flotilla/internal/model"
)

// Store is the external secret store boundary. Resolve exchanges a
// reference for a transient credential handle.
type Store interface {
	Resolve(ctx context.Context, ref string) (Handle, error)
}

// Handle is an opaque runtime credential handle. The zero value is
// invalid. Handles render as their reference, never their value.
type Handle struct {
	// Ref is the secret store reference the handle was resolved from.
	Ref string
	// Token is the transient runtime token the container runtime passes
	// to the platform. Treated as opaque by everything in this module.
	Token string
}

// String renders the reference only. The token never appears in logs or
// errors.
func (h Handle) String() string { return h.Ref }

// Binding is a resolved secret binding: the environment variable name and
// the opaque handle, ready to hand to the container runtime.
type Binding struct {
	Env    string
	Handle Handle
}

// Injector performs pre-flight resolution of every secret binding in a
// task definition.
type Injector struct {
	store Store
	log   *slog.Logger
}

// NewInjector creates an injector. A nil logger discards events.
func NewInjector(store Store, log *slog.Logger) *Injector {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Injector{store: store, log: log}
}

// Inject resolves every secret binding in the task definition and returns
// the resolved bindings keyed by container name. Resolution failures are
// fatal: the first SecretNotFound or SecretAccessDenied aborts with a
// ResolutionError naming the container, environment variable, and
// reference.
func (i *Injector) Inject(ctx context.Context, td model.TaskDefinition) (map[string][]Binding, error) {
	resolved := make(map[string][]Binding)
	for _, c := range td.Containers {
		for _, sb := range c.Secrets {
			h, err := i.store.Resolve(ctx, sb.Ref)
			if err != nil {
				i.log.Error("secret resolution failed",
					"stage", "secrets", "container", c.Name, "env", sb.Env, "ref", sb.Ref, "outcome", "failed")
				return nil, wrapResolveError(c.Name, sb, err)
			}
			i.log.Debug("secret resolved",
				"stage", "secrets", "container", c.Name, "env", sb.Env, "ref", sb.Ref, "outcome", "resolved")
			resolved[c.Name] = append(resolved[c.Name], Binding{Env: sb.Env, Handle: h})
		}
	}
	return resolved, nil
}
