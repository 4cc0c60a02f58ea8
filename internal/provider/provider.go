// Package provider defines the boundary to the cloud resource API: a
// capability set of Create/Read/Update/Delete per resource type,
// dispatched by type tag. The reconciler only ever talks to this
// interface; real cloud bindings live outside the module.
//
// The package ships one implementation, Memory, a deterministic in-memory
// provider used by the CLI's local mode, the harness, and tests.
package provider

import (
	"context"
	"fmt"

	"github.com/roach88/flotilla/internal/model"
)

// Handler implements the CRUD capability set for one or more resource
// types. Create and Update receive fully resolved attributes (no
// references) and return the live attributes, including any generated
// identifiers.
type Handler interface {
	Create(ctx context.Context, key model.Key, attrs model.Attrs) (model.Attrs, error)
	Read(ctx context.Context, key model.Key) (model.Attrs, bool, error)
	Update(ctx context.Context, key model.Key, attrs model.Attrs) (model.Attrs, error)
	Delete(ctx context.Context, key model.Key) error
}

// Registry dispatches resource operations to handlers by type tag.
type Registry struct {
	byType map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Handler)}
}

// Register binds a handler to a resource type tag.
// Later registrations replace earlier ones.
func (r *Registry) Register(typeTag string, h Handler) {
	r.byType[typeTag] = h
}

// RegisterAll binds a handler to every type in the schema registry.
func (r *Registry) RegisterAll(schemas *model.SchemaRegistry, h Handler) {
	for _, typeTag := range schemaTypes(schemas) {
		r.byType[typeTag] = h
	}
}

// For returns the handler for a type tag.
func (r *Registry) For(typeTag string) (Handler, error) {
	h, ok := r.byType[typeTag]
	if !ok {
		return nil, fmt.Errorf("no provider handler registered for resource type %q", typeTag)
	}
	return h, nil
}

// schemaTypes enumerates the registry's type tags via the builtin list.
// SchemaRegistry intentionally has no iteration API; the fixed topology is
// small enough to enumerate here.
func schemaTypes(schemas *model.SchemaRegistry) []string {
	candidates := []string{
		"network", "subnet", "security_group", "registry_repository",
		"log_group", "iam_role", "secret", "cluster", "task_definition",
		"target_group", "load_balancer", "listener", "service", "dns_record",
	}
	var out []string
	for _, c := range candidates {
		if schemas.Known(c) {
			out = append(out, c)
		}
	}
	return out
}
