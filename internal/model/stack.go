package model

import "fmt"

// Stack is a fully compiled deployment manifest: the infrastructure
// resource set plus the task definition and service the deployment runs.
type Stack struct {
	Name      string
	Resources *ResourceSet
	Task      TaskDefinition
	Service   ServiceSpec
}

// Validate cross-checks the stack against a schema registry: every
// resource type known, every reference pointing at a resource in the set
// and at an output attribute the target type produces, plus task and
// service validation. Cycle detection is the graph package's job, not
// this one.
func (s *Stack) Validate(schemas *SchemaRegistry) error {
	if s.Name == "" {
		return fmt.Errorf("stack requires a name")
	}
	if s.Resources == nil {
		return fmt.Errorf("stack %s has no resources", s.Name)
	}
	for _, k := range s.Resources.Keys() {
		r, _ := s.Resources.Get(k)
		if _, err := schemas.Lookup(k.Type); err != nil {
			return fmt.Errorf("resource %s: %w", k, err)
		}
		for _, ref := range r.Refs() {
			target, ok := s.Resources.Get(ref.Target)
			if !ok {
				return fmt.Errorf("resource %s references unknown resource %s", k, ref.Target)
			}
			targetSchema, err := schemas.Lookup(target.Key.Type)
			if err != nil {
				return fmt.Errorf("resource %s: %w", target.Key, err)
			}
			if !targetSchema.Outputs[ref.Attr] {
				return fmt.Errorf("resource %s references %s.%s, but type %q has no output %q",
					k, ref.Target, ref.Attr, target.Key.Type, ref.Attr)
			}
		}
	}
	if err := s.Task.Validate(); err != nil {
		return err
	}
	if err := s.Service.Validate(); err != nil {
		return err
	}
	if s.Service.TaskFamily != s.Task.Family {
		return fmt.Errorf("service %s runs task family %q but the stack defines family %q",
			s.Service.Name, s.Service.TaskFamily, s.Task.Family)
	}
	return nil
}
