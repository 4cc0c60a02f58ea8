package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/flotilla/internal/model"
)

// CompileSource compiles a CUE stack manifest into a model.Stack.
// Resources keep their manifest declaration order; it is the tie-break
// for apply ordering.
//
// The manifest's top level is a `stack` struct:
//
//	stack: {
//		name: "trader"
//		resources: [
//			{type: "network", name: "main", attrs: {cidr: "10.0.0.0/16"}},
//		]
//		task: {...}
//		service: {...}
//	}
func CompileSource(filename string, src []byte) (*model.Stack, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	stackVal := v.LookupPath(cue.ParsePath("stack"))
	if !stackVal.Exists() {
		return nil, &CompileError{
			Field:   "stack",
			Message: "manifest must declare a top-level stack",
			Pos:     v.Pos(),
		}
	}
	return CompileStack(stackVal)
}

// CompileStack parses a CUE value holding the stack struct itself.
// Uses CUE SDK's Go API directly (not CLI subprocess).
func CompileStack(v cue.Value) (*model.Stack, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	stack := &model.Stack{Resources: model.NewResourceSet()}

	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	stack.Name = name

	if err := parseResources(v, stack.Resources); err != nil {
		return nil, err
	}

	taskVal := v.LookupPath(cue.ParsePath("task"))
	if !taskVal.Exists() {
		return nil, &CompileError{Field: "task", Message: "task is required", Pos: v.Pos()}
	}
	stack.Task, err = parseTask(taskVal)
	if err != nil {
		return nil, err
	}

	serviceVal := v.LookupPath(cue.ParsePath("service"))
	if !serviceVal.Exists() {
		return nil, &CompileError{Field: "service", Message: "service is required", Pos: v.Pos()}
	}
	stack.Service, err = parseService(serviceVal)
	if err != nil {
		return nil, err
	}

	return stack, nil
}

func parseResources(v cue.Value, set *model.ResourceSet) error {
	resVal := v.LookupPath(cue.ParsePath("resources"))
	if !resVal.Exists() {
		return nil
	}
	iter, err := resVal.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		rv := iter.Value()
		typ, err := requiredString(rv, "type")
		if err != nil {
			return err
		}
		name, err := requiredString(rv, "name")
		if err != nil {
			return err
		}

		attrs := model.Attrs{}
		attrsVal := rv.LookupPath(cue.ParsePath("attrs"))
		if attrsVal.Exists() {
			attrs, err = parseAttrs(attrsVal)
			if err != nil {
				return err
			}
		}

		key := model.Key{Type: typ, Name: name}
		if err := set.Add(model.Resource{Key: key, Attrs: attrs}); err != nil {
			return &CompileError{
				Field:   "resources",
				Message: err.Error(),
				Pos:     rv.Pos(),
			}
		}
	}
	return nil
}

// parseAttrs converts a CUE struct into an attribute mapping. Strings of
// the form "${type.name.attr}" become references; floats and nulls are
// rejected to keep attributes canonically hashable.
func parseAttrs(v cue.Value) (model.Attrs, error) {
	attrs := model.Attrs{}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		val, err := parseAttrValue(iter.Value())
		if err != nil {
			return nil, err
		}
		attrs[iter.Selector().Unquoted()] = val
	}
	return attrs, nil
}

func parseAttrValue(v cue.Value) (model.AttrValue, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if ref, ok := model.ParseRef(s); ok {
			return ref, nil
		}
		return model.StringVal(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return model.IntVal(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return model.BoolVal(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var list model.ListVal
		for iter.Next() {
			elem, err := parseAttrValue(iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.StructKind:
		nested, err := parseAttrs(v)
		if err != nil {
			return nil, err
		}
		return model.MapVal(nested), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   pathString(v),
			Message: "float attribute values are not supported",
			Pos:     v.Pos(),
		}
	case cue.NullKind:
		return nil, &CompileError{
			Field:   pathString(v),
			Message: "null attribute values are not supported",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   pathString(v),
			Message: fmt.Sprintf("unsupported attribute kind %s", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func parseTask(v cue.Value) (model.TaskDefinition, error) {
	td := model.TaskDefinition{Revision: 1}

	family, err := requiredString(v, "family")
	if err != nil {
		return td, err
	}
	td.Family = family

	td.NetworkMode, err = optionalString(v, "network_mode")
	if err != nil {
		return td, err
	}
	td.ExecutionRole, err = optionalKey(v, "execution_role")
	if err != nil {
		return td, err
	}
	td.TaskRole, err = optionalKey(v, "task_role")
	if err != nil {
		return td, err
	}

	containersVal := v.LookupPath(cue.ParsePath("containers"))
	if !containersVal.Exists() {
		return td, &CompileError{Field: "task.containers", Message: "at least one container is required", Pos: v.Pos()}
	}
	iter, err := containersVal.List()
	if err != nil {
		return td, formatCUEError(err)
	}
	for iter.Next() {
		c, err := parseContainer(iter.Value())
		if err != nil {
			return td, err
		}
		td.Containers = append(td.Containers, c)
	}
	if len(td.Containers) == 0 {
		return td, &CompileError{Field: "task.containers", Message: "at least one container is required", Pos: v.Pos()}
	}
	return td, nil
}

func parseContainer(v cue.Value) (model.ContainerSpec, error) {
	var c model.ContainerSpec

	name, err := requiredString(v, "name")
	if err != nil {
		return c, err
	}
	c.Name = name

	c.Image, err = requiredString(v, "image")
	if err != nil {
		return c, err
	}

	essVal := v.LookupPath(cue.ParsePath("essential"))
	if essVal.Exists() {
		c.Essential, err = essVal.Bool()
		if err != nil {
			return c, formatCUEError(err)
		}
	}

	envVal := v.LookupPath(cue.ParsePath("env"))
	if envVal.Exists() {
		c.Env = map[string]string{}
		iter, err := envVal.Fields()
		if err != nil {
			return c, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return c, formatCUEError(err)
			}
			c.Env[iter.Selector().Unquoted()] = s
		}
	}

	secretsVal := v.LookupPath(cue.ParsePath("secrets"))
	if secretsVal.Exists() {
		iter, err := secretsVal.List()
		if err != nil {
			return c, formatCUEError(err)
		}
		for iter.Next() {
			sv := iter.Value()
			env, err := requiredString(sv, "env")
			if err != nil {
				return c, err
			}
			ref, err := requiredString(sv, "ref")
			if err != nil {
				return c, err
			}
			c.Secrets = append(c.Secrets, model.SecretBinding{Env: env, Ref: ref})
		}
	}

	healthVal := v.LookupPath(cue.ParsePath("health"))
	if healthVal.Exists() {
		hc, err := parseHealthCheck(healthVal)
		if err != nil {
			return c, err
		}
		c.Health = &hc
	}

	depsVal := v.LookupPath(cue.ParsePath("depends_on"))
	if depsVal.Exists() {
		iter, err := depsVal.List()
		if err != nil {
			return c, formatCUEError(err)
		}
		for iter.Next() {
			dv := iter.Value()
			container, err := requiredString(dv, "container")
			if err != nil {
				return c, err
			}
			condStr, err := requiredString(dv, "condition")
			if err != nil {
				return c, err
			}
			cond, err := model.ParseCondition(condStr)
			if err != nil {
				return c, &CompileError{Field: "depends_on.condition", Message: err.Error(), Pos: dv.Pos()}
			}
			c.DependsOn = append(c.DependsOn, model.DependsOn{Container: container, Condition: cond})
		}
	}

	return c, nil
}

func parseHealthCheck(v cue.Value) (model.HealthCheck, error) {
	var hc model.HealthCheck

	cmdVal := v.LookupPath(cue.ParsePath("command"))
	if cmdVal.Exists() {
		iter, err := cmdVal.List()
		if err != nil {
			return hc, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return hc, formatCUEError(err)
			}
			hc.Command = append(hc.Command, s)
		}
	}

	var err error
	hc.Interval, err = requiredDuration(v, "interval")
	if err != nil {
		return hc, err
	}
	hc.Timeout, err = requiredDuration(v, "timeout")
	if err != nil {
		return hc, err
	}

	retriesVal := v.LookupPath(cue.ParsePath("retries"))
	if !retriesVal.Exists() {
		return hc, &CompileError{Field: "health.retries", Message: "retries is required", Pos: v.Pos()}
	}
	retries, err := retriesVal.Int64()
	if err != nil {
		return hc, formatCUEError(err)
	}
	hc.Retries = int(retries)

	startVal := v.LookupPath(cue.ParsePath("start_period"))
	if startVal.Exists() {
		hc.StartPeriod, err = parseDuration(startVal, "health.start_period")
		if err != nil {
			return hc, err
		}
	}

	if err := hc.Validate(); err != nil {
		return hc, &CompileError{Field: "health", Message: err.Error(), Pos: v.Pos()}
	}
	return hc, nil
}

func parseService(v cue.Value) (model.ServiceSpec, error) {
	var svc model.ServiceSpec

	name, err := requiredString(v, "name")
	if err != nil {
		return svc, err
	}
	svc.Name = name

	svc.TaskFamily, err = requiredString(v, "task_family")
	if err != nil {
		return svc, err
	}
	svc.Cluster, err = optionalKey(v, "cluster")
	if err != nil {
		return svc, err
	}
	svc.TargetGroup, err = optionalKey(v, "target_group")
	if err != nil {
		return svc, err
	}

	countVal := v.LookupPath(cue.ParsePath("desired_count"))
	if !countVal.Exists() {
		return svc, &CompileError{Field: "service.desired_count", Message: "desired_count is required", Pos: v.Pos()}
	}
	count, err := countVal.Int64()
	if err != nil {
		return svc, formatCUEError(err)
	}
	svc.DesiredCount = int(count)

	return svc, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalKey(v cue.Value, field string) (model.Key, error) {
	s, err := optionalString(v, field)
	if err != nil || s == "" {
		return model.Key{}, err
	}
	k, err := model.ParseKey(s)
	if err != nil {
		return model.Key{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return k, nil
}

func requiredDuration(v cue.Value, field string) (time.Duration, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{Field: "health." + field, Message: field + " is required", Pos: v.Pos()}
	}
	return parseDuration(fv, "health."+field)
}

func parseDuration(v cue.Value, field string) (time.Duration, error) {
	s, err := v.String()
	if err != nil {
		return 0, formatCUEError(err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return d, nil
}

func pathString(v cue.Value) string {
	return v.Path().String()
}
