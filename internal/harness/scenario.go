package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/provider"
)

// Scenario defines one conformance scenario: a manifest, an ordered
// list of steps to run against it, and assertions over the resulting
// trace and live state.
type Scenario struct {
	// Name uniquely identifies the scenario; it also names the golden
	// file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Manifest is the stack manifest path, relative to the scenario
	// file.
	Manifest string `yaml:"manifest"`

	// Secrets seeds the in-memory secret store (reference -> token).
	Secrets map[string]string `yaml:"secrets,omitempty"`

	// Denied lists secret references the store refuses to resolve.
	Denied []string `yaml:"denied,omitempty"`

	// UnhealthyTargets pins the named instances to an unhealthy target
	// status, so rollouts waiting on them time out.
	UnhealthyTargets []string `yaml:"unhealthy_targets,omitempty"`

	// Failures injects provider faults before the first step runs.
	Failures []FaultSpec `yaml:"failures,omitempty"`

	// Steps is the ordered list of operations to execute.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state after all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// FaultSpec injects one provider failure: the next matching operation
// on the resource fails.
type FaultSpec struct {
	Op       string `yaml:"op"`       // create | read | update | delete
	Resource string `yaml:"resource"` // "type.name"
}

// Step is one operation of the scenario.
type Step struct {
	// Run names the operation: plan, apply, deploy, or destroy.
	Run string `yaml:"run"`

	// Expect validates the step's result. Nil means the step only has
	// to succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset match over a step result. Only set fields are
// checked; pointer fields distinguish "unset" from zero.
type Expect struct {
	// Error is a substring the step error must contain. Empty means
	// the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Stage is the pipeline stage a failed deploy must name.
	Stage string `yaml:"stage,omitempty"`

	// Outcome, Endpoint, and Token match deploy results exactly.
	Outcome  string `yaml:"outcome,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Token    string `yaml:"token,omitempty"`

	// Revision matches the deployed task definition revision.
	Revision *int `yaml:"revision,omitempty"`

	// Plan summary counts.
	Create  *int `yaml:"create,omitempty"`
	Update  *int `yaml:"update,omitempty"`
	Replace *int `yaml:"replace,omitempty"`
	Delete  *int `yaml:"delete,omitempty"`
	NoOp    *int `yaml:"noop,omitempty"`

	// Applied and Deleted match apply/destroy completion counts.
	Applied *int `yaml:"applied,omitempty"`
	Deleted *int `yaml:"deleted,omitempty"`
}

// Assertion validates the trace or the final live state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// final_state.
	Type string `yaml:"type"`

	// Stage filters trace events (trace_contains, trace_count).
	Stage string `yaml:"stage,omitempty"`

	// Attrs is a subset match on event attributes (trace_contains,
	// trace_count).
	Attrs map[string]string `yaml:"attrs,omitempty"`

	// Stages is the expected stage order (trace_order).
	Stages []string `yaml:"stages,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Resource names a live resource "type.name" (final_state).
	Resource string `yaml:"resource,omitempty"`

	// Expect is a subset match on the resource's live attributes
	// (final_state). An empty value asserts mere presence of the
	// resource. Absent asserts absence when Expect is nil and Gone is
	// true.
	Expect map[string]string `yaml:"expect,omitempty"`

	// Gone asserts the resource is absent from the final state
	// (final_state).
	Gone bool `yaml:"gone,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Step run constants.
const (
	RunPlan    = "plan"
	RunApply   = "apply"
	RunDeploy  = "deploy"
	RunDestroy = "destroy"
)

// LoadScenario reads and parses a scenario YAML file. The manifest
// path is resolved relative to the scenario file. Unknown YAML fields
// are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if scenario.Manifest != "" && !filepath.IsAbs(scenario.Manifest) {
		scenario.Manifest = filepath.Join(filepath.Dir(path), scenario.Manifest)
	}

	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if _, err := os.Stat(s.Manifest); err != nil {
		return fmt.Errorf("manifest not found: %s", s.Manifest)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Run {
		case RunPlan, RunApply, RunDeploy, RunDestroy:
		case "":
			return fmt.Errorf("steps[%d]: run is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown run %q", i, step.Run)
		}
	}

	for i, f := range s.Failures {
		switch provider.Op(f.Op) {
		case provider.OpCreate, provider.OpRead, provider.OpUpdate, provider.OpDelete:
		default:
			return fmt.Errorf("failures[%d]: unknown op %q", i, f.Op)
		}
		if _, err := model.ParseKey(f.Resource); err != nil {
			return fmt.Errorf("failures[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func (a *Assertion) validate() error {
	switch a.Type {
	case AssertTraceContains:
		if a.Stage == "" && len(a.Attrs) == 0 {
			return fmt.Errorf("trace_contains needs a stage or attrs")
		}
	case AssertTraceOrder:
		if len(a.Stages) < 2 {
			return fmt.Errorf("trace_order needs at least two stages")
		}
	case AssertTraceCount:
		if a.Stage == "" && len(a.Attrs) == 0 {
			return fmt.Errorf("trace_count needs a stage or attrs")
		}
		if a.Count < 0 {
			return fmt.Errorf("trace_count count must be non-negative")
		}
	case AssertFinalState:
		if a.Resource == "" {
			return fmt.Errorf("final_state needs a resource")
		}
		if _, err := model.ParseKey(a.Resource); err != nil {
			return err
		}
		if a.Gone && len(a.Expect) > 0 {
			return fmt.Errorf("final_state cannot combine gone with expect")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
