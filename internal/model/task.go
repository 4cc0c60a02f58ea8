package model

import (
	"fmt"
	"time"
)

// Condition is a startup ordering condition between containers in one task.
type Condition string

const (
	// ConditionStart requires the dependency to have started (Running).
	ConditionStart Condition = "START"
	// ConditionHealthy requires the dependency's health check to report
	// success.
	ConditionHealthy Condition = "HEALTHY"
	// ConditionComplete requires the dependency to have stopped, with any
	// exit code.
	ConditionComplete Condition = "COMPLETE"
	// ConditionSuccess requires the dependency to have stopped with exit
	// code zero.
	ConditionSuccess Condition = "SUCCESS"
)

// ParseCondition parses a condition name.
func ParseCondition(s string) (Condition, error) {
	switch Condition(s) {
	case ConditionStart, ConditionHealthy, ConditionComplete, ConditionSuccess:
		return Condition(s), nil
	default:
		return "", fmt.Errorf("invalid container condition %q: want START, HEALTHY, COMPLETE, or SUCCESS", s)
	}
}

// HealthCheck describes a container health probe.
type HealthCheck struct {
	// Command is the probe command run inside the container.
	Command []string `json:"command"`
	// Interval is the cadence between probes.
	Interval time.Duration `json:"interval"`
	// Timeout bounds a single probe execution.
	Timeout time.Duration `json:"timeout"`
	// Retries is the number of consecutive failures that flips the
	// container to Unhealthy.
	Retries int `json:"retries"`
	// StartPeriod is the grace window after start during which failures
	// do not count toward Retries.
	StartPeriod time.Duration `json:"start_period"`
}

// Validate checks the probe descriptor for nonsensical values.
func (h HealthCheck) Validate() error {
	if len(h.Command) == 0 {
		return fmt.Errorf("health check requires a command")
	}
	if h.Interval <= 0 {
		return fmt.Errorf("health check interval must be positive, got %s", h.Interval)
	}
	if h.Timeout <= 0 {
		return fmt.Errorf("health check timeout must be positive, got %s", h.Timeout)
	}
	if h.Retries < 1 {
		return fmt.Errorf("health check retries must be at least 1, got %d", h.Retries)
	}
	if h.StartPeriod < 0 {
		return fmt.Errorf("health check start period must not be negative, got %s", h.StartPeriod)
	}
	return nil
}

// DependsOn is one startup ordering constraint: the owning container is not
// started until Container satisfies Condition.
type DependsOn struct {
	Container string    `json:"container"`
	Condition Condition `json:"condition"`
}

// SecretBinding maps an environment variable name to a secret store
// reference. The model never holds secret plaintext; only the reference
// survives serialization.
type SecretBinding struct {
	// Env is the environment variable name the secret is exposed as.
	Env string `json:"env"`
	// Ref is the secret store reference, e.g. "secret.trader_api_key" or
	// an external ARN. Opaque to the model.
	Ref string `json:"ref"`
}

// ContainerSpec describes one container in a task definition.
type ContainerSpec struct {
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	Essential bool              `json:"essential"`
	Env       map[string]string `json:"env,omitempty"`
	Secrets   []SecretBinding   `json:"secrets,omitempty"`
	Health    *HealthCheck      `json:"health,omitempty"`
	DependsOn []DependsOn       `json:"depends_on,omitempty"`
}

// StartBudget returns how long a dependent may wait for this container to
// satisfy a HEALTHY condition: startPeriod + retries x interval. Containers
// without a health check get zero (callers fall back to their own default).
func (c ContainerSpec) StartBudget() time.Duration {
	if c.Health == nil {
		return 0
	}
	return c.Health.StartPeriod + time.Duration(c.Health.Retries)*c.Health.Interval
}

// TaskDefinition is an ordered set of containers sharing network and IAM
// identity. Immutable once created: a change produces a new revision via
// NewRevision, never an in-place mutation.
type TaskDefinition struct {
	Family     string          `json:"family"`
	Revision   int             `json:"revision"`
	Containers []ContainerSpec `json:"containers"`

	// NetworkMode is immutable platform identity shared by all containers.
	NetworkMode string `json:"network_mode"`
	// ExecutionRole and TaskRole reference iam_role resources.
	ExecutionRole Key `json:"execution_role"`
	TaskRole      Key `json:"task_role"`
}

// Container returns the container spec with the given name.
func (t TaskDefinition) Container(name string) (ContainerSpec, bool) {
	for _, c := range t.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return ContainerSpec{}, false
}

// NewRevision returns a copy of the definition with the next revision
// number and every container's image replaced by imageRef. The receiver is
// not modified.
func (t TaskDefinition) NewRevision(imageRef string) TaskDefinition {
	next := t
	next.Revision = t.Revision + 1
	next.Containers = make([]ContainerSpec, len(t.Containers))
	copy(next.Containers, t.Containers)
	for i := range next.Containers {
		next.Containers[i].Image = imageRef
	}
	return next
}

// Hash computes the content hash identifying this revision's payload.
// Two revisions with identical containers, network mode, and roles hash
// identically regardless of revision number.
func (t TaskDefinition) Hash() (string, error) {
	attrs := Attrs{
		"family":         StringVal(t.Family),
		"network_mode":   StringVal(t.NetworkMode),
		"execution_role": StringVal(t.ExecutionRole.String()),
		"task_role":      StringVal(t.TaskRole.String()),
		"containers":     containersAttr(t.Containers),
	}
	canonical, err := MarshalCanonicalAttrs(attrs)
	if err != nil {
		return "", fmt.Errorf("hash task definition %s: %w", t.Family, err)
	}
	return hashWithDomain(DomainTaskDef, canonical), nil
}

func containersAttr(containers []ContainerSpec) ListVal {
	out := make(ListVal, len(containers))
	for i, c := range containers {
		m := MapVal{
			"name":      StringVal(c.Name),
			"image":     StringVal(c.Image),
			"essential": BoolVal(c.Essential),
		}
		if len(c.Env) > 0 {
			env := make(MapVal, len(c.Env))
			for k, v := range c.Env {
				env[k] = StringVal(v)
			}
			m["env"] = env
		}
		if len(c.Secrets) > 0 {
			secrets := make(ListVal, len(c.Secrets))
			for j, s := range c.Secrets {
				secrets[j] = MapVal{"env": StringVal(s.Env), "ref": StringVal(s.Ref)}
			}
			m["secrets"] = secrets
		}
		if c.Health != nil {
			cmd := make(ListVal, len(c.Health.Command))
			for j, arg := range c.Health.Command {
				cmd[j] = StringVal(arg)
			}
			m["health"] = MapVal{
				"command":      cmd,
				"interval":     IntVal(c.Health.Interval.Milliseconds()),
				"timeout":      IntVal(c.Health.Timeout.Milliseconds()),
				"retries":      IntVal(int64(c.Health.Retries)),
				"start_period": IntVal(c.Health.StartPeriod.Milliseconds()),
			}
		}
		if len(c.DependsOn) > 0 {
			deps := make(ListVal, len(c.DependsOn))
			for j, d := range c.DependsOn {
				deps[j] = MapVal{"container": StringVal(d.Container), "condition": StringVal(string(d.Condition))}
			}
			m["depends_on"] = deps
		}
		out[i] = m
	}
	return out
}

// Validate checks container naming, dependsOn references, and health check
// descriptors. DependsOn must reference an earlier-declared container; the
// declared order is the startup order skeleton.
func (t TaskDefinition) Validate() error {
	if t.Family == "" {
		return fmt.Errorf("task definition requires a family name")
	}
	if len(t.Containers) == 0 {
		return fmt.Errorf("task definition %s has no containers", t.Family)
	}
	seen := make(map[string]int, len(t.Containers))
	for i, c := range t.Containers {
		if c.Name == "" {
			return fmt.Errorf("task definition %s: container %d has no name", t.Family, i)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("task definition %s: duplicate container name %q", t.Family, c.Name)
		}
		seen[c.Name] = i
		if c.Health != nil {
			if err := c.Health.Validate(); err != nil {
				return fmt.Errorf("task definition %s: container %q: %w", t.Family, c.Name, err)
			}
		}
	}
	for _, c := range t.Containers {
		for _, d := range c.DependsOn {
			depIdx, ok := seen[d.Container]
			if !ok {
				return fmt.Errorf("task definition %s: container %q depends on unknown container %q", t.Family, c.Name, d.Container)
			}
			if d.Container == c.Name {
				return fmt.Errorf("task definition %s: container %q depends on itself", t.Family, c.Name)
			}
			if depIdx >= seen[c.Name] {
				return fmt.Errorf("task definition %s: container %q depends on later container %q", t.Family, c.Name, d.Container)
			}
			if _, err := ParseCondition(string(d.Condition)); err != nil {
				return fmt.Errorf("task definition %s: container %q: %w", t.Family, c.Name, err)
			}
			if d.Condition == ConditionHealthy {
				dep, _ := t.Container(d.Container)
				if dep.Health == nil {
					return fmt.Errorf("task definition %s: container %q requires %q HEALTHY but %q has no health check", t.Family, c.Name, d.Container, d.Container)
				}
			}
		}
	}
	return nil
}

// ServiceSpec binds a task definition family to a running service.
type ServiceSpec struct {
	Name         string `json:"name"`
	Cluster      Key    `json:"cluster"`
	TaskFamily   string `json:"task_family"`
	DesiredCount int    `json:"desired_count"`
	TargetGroup  Key    `json:"target_group"`
}

// Validate checks the service binding.
func (s ServiceSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("service requires a name")
	}
	if s.TaskFamily == "" {
		return fmt.Errorf("service %s requires a task family", s.Name)
	}
	if s.DesiredCount < 1 {
		return fmt.Errorf("service %s desired count must be at least 1, got %d", s.Name, s.DesiredCount)
	}
	return nil
}
