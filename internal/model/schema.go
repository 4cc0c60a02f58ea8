package model

import "fmt"

// TypeSchema declares per-type diff behavior: which attributes are
// immutable (a change forces replacement rather than an in-place update)
// and which output attributes the type is expected to produce.
type TypeSchema struct {
	// Type is the resource type tag, e.g. "network" or "task_definition".
	Type string

	// Immutable lists attribute names that cannot change in place.
	// A diff on any of these yields a Replace action.
	Immutable map[string]bool

	// Outputs lists the live attributes the provider generates on create,
	// e.g. "id" or "arn". Used by manifest validation to reject references
	// to attributes the target type will never produce.
	Outputs map[string]bool
}

// ForcesReplace reports whether a change to the named attribute forces
// replacement of the resource.
func (s TypeSchema) ForcesReplace(attr string) bool {
	return s.Immutable[attr]
}

// SchemaRegistry maps resource type tags to their schemas.
type SchemaRegistry struct {
	byType map[string]TypeSchema
}

// NewSchemaRegistry creates a registry from the given schemas.
func NewSchemaRegistry(schemas ...TypeSchema) *SchemaRegistry {
	r := &SchemaRegistry{byType: make(map[string]TypeSchema, len(schemas))}
	for _, s := range schemas {
		r.byType[s.Type] = s
	}
	return r
}

// Lookup returns the schema for a type tag.
func (r *SchemaRegistry) Lookup(typeTag string) (TypeSchema, error) {
	s, ok := r.byType[typeTag]
	if !ok {
		return TypeSchema{}, fmt.Errorf("unknown resource type %q", typeTag)
	}
	return s, nil
}

// Known reports whether the registry carries a schema for the type tag.
func (r *SchemaRegistry) Known(typeTag string) bool {
	_, ok := r.byType[typeTag]
	return ok
}

// BuiltinSchemas returns the fixed topology this deployment provisions:
// network -> security -> registry/cluster -> task/service -> load balancer
// -> DNS. Attribute immutability mirrors what the underlying platform
// refuses to change in place.
func BuiltinSchemas() *SchemaRegistry {
	outID := map[string]bool{"id": true, "arn": true}
	return NewSchemaRegistry(
		TypeSchema{
			Type:      "network",
			Immutable: map[string]bool{"cidr_block": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "subnet",
			Immutable: map[string]bool{"network": true, "cidr_block": true, "availability_zone": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "security_group",
			Immutable: map[string]bool{"network": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "registry_repository",
			Immutable: map[string]bool{"repository_name": true},
			Outputs:   map[string]bool{"id": true, "arn": true, "repository_url": true},
		},
		TypeSchema{
			Type:      "log_group",
			Immutable: map[string]bool{"group_name": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "iam_role",
			Immutable: map[string]bool{"role_name": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "secret",
			Immutable: map[string]bool{"secret_name": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "cluster",
			Immutable: map[string]bool{"cluster_name": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "task_definition",
			Immutable: map[string]bool{"family": true, "network_mode": true, "cpu": true, "memory": true},
			Outputs:   map[string]bool{"id": true, "arn": true, "revision": true},
		},
		TypeSchema{
			Type:      "target_group",
			Immutable: map[string]bool{"network": true, "port": true, "protocol": true, "target_type": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "load_balancer",
			Immutable: map[string]bool{"subnets": true, "lb_type": true},
			Outputs:   map[string]bool{"id": true, "arn": true, "dns_name": true},
		},
		TypeSchema{
			Type:      "listener",
			Immutable: map[string]bool{"load_balancer": true, "port": true, "protocol": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "service",
			Immutable: map[string]bool{"cluster": true, "service_name": true, "launch_type": true},
			Outputs:   outID,
		},
		TypeSchema{
			Type:      "dns_record",
			Immutable: map[string]bool{"zone": true, "record_name": true, "record_type": true},
			Outputs:   outID,
		},
	)
}
