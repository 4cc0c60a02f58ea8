package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/secret"
)

// RuntimeStatus is the container runtime's view of one container.
type RuntimeStatus struct {
	Running  bool
	Exited   bool
	ExitCode int
}

// Runtime is the external container runtime boundary. Start launches a
// container with its resolved secret bindings; Status reports its
// lifecycle state. The gate never interprets anything richer than this.
type Runtime interface {
	Start(ctx context.Context, instanceID string, spec model.ContainerSpec, secrets []secret.Binding) error
	Status(ctx context.Context, instanceID, container string) (RuntimeStatus, error)
	Stop(ctx context.Context, instanceID string) error
}

// ProbeExecutor runs a declared health probe and classifies the outcome.
// A nil return is a pass; anything else is a fail. The gate only consumes
// pass/fail - probe output stays with the executor.
type ProbeExecutor interface {
	Probe(ctx context.Context, instanceID, container string, hc model.HealthCheck) error
}

// MemoryRuntime is a deterministic in-memory runtime for local mode and
// tests. Started containers report running until a scripted exit is
// registered.
type MemoryRuntime struct {
	mu      sync.Mutex
	started map[string][]string      // instance -> containers in start order
	status  map[string]RuntimeStatus // instance/container -> status
	failOn  map[string]error         // container name -> start error
	exitOn  map[string]int           // container name -> immediate exit code
	stopped map[string]bool
}

// NewMemoryRuntime creates an empty runtime.
func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{
		started: make(map[string][]string),
		status:  make(map[string]RuntimeStatus),
		failOn:  make(map[string]error),
		exitOn:  make(map[string]int),
		stopped: make(map[string]bool),
	}
}

func statusKey(instanceID, container string) string { return instanceID + "/" + container }

// FailStart makes Start fail for the named container.
func (r *MemoryRuntime) FailStart(container string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn[container] = err
}

// ExitOnStart makes the named container report exited with the given
// code as soon as it starts. Models a fast-completing init container.
func (r *MemoryRuntime) ExitOnStart(container string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exitOn[container] = code
}

// ScriptExit marks a started container as exited with the given code.
func (r *MemoryRuntime) ScriptExit(instanceID, container string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[statusKey(instanceID, container)] = RuntimeStatus{Exited: true, ExitCode: code}
}

// Start implements Runtime.
func (r *MemoryRuntime) Start(ctx context.Context, instanceID string, spec model.ContainerSpec, secrets []secret.Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOn[spec.Name]; ok {
		return err
	}
	key := statusKey(instanceID, spec.Name)
	if _, exists := r.status[key]; exists {
		return fmt.Errorf("container %q already started on %s", spec.Name, instanceID)
	}
	r.started[instanceID] = append(r.started[instanceID], spec.Name)
	if code, ok := r.exitOn[spec.Name]; ok {
		r.status[key] = RuntimeStatus{Exited: true, ExitCode: code}
	} else {
		r.status[key] = RuntimeStatus{Running: true}
	}
	return nil
}

// Status implements Runtime.
func (r *MemoryRuntime) Status(ctx context.Context, instanceID, container string) (RuntimeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.status[statusKey(instanceID, container)]
	if !ok {
		return RuntimeStatus{}, fmt.Errorf("container %q not started on %s", container, instanceID)
	}
	return s, nil
}

// Stop implements Runtime.
func (r *MemoryRuntime) Stop(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped[instanceID] = true
	for _, c := range r.started[instanceID] {
		key := statusKey(instanceID, c)
		s := r.status[key]
		if s.Running {
			r.status[key] = RuntimeStatus{Exited: true, ExitCode: 0}
		}
	}
	return nil
}

// StartOrder returns the order containers were started on an instance.
func (r *MemoryRuntime) StartOrder(instanceID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.started[instanceID]))
	copy(out, r.started[instanceID])
	return out
}

// Stopped reports whether Stop was called for the instance.
func (r *MemoryRuntime) Stopped(instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped[instanceID]
}

// ScriptedProbe replays per-container probe outcomes in order. Once a
// container's script runs out, the last outcome repeats. Containers
// without a script always pass.
type ScriptedProbe struct {
	mu      sync.Mutex
	scripts map[string][]error
	cursor  map[string]int
}

// NewScriptedProbe creates an empty probe script.
func NewScriptedProbe() *ScriptedProbe {
	return &ScriptedProbe{
		scripts: make(map[string][]error),
		cursor:  make(map[string]int),
	}
}

// Script sets the ordered probe outcomes for a container. Use nil
// entries for passes.
func (p *ScriptedProbe) Script(container string, outcomes ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[container] = outcomes
}

// Probe implements ProbeExecutor.
func (p *ScriptedProbe) Probe(ctx context.Context, instanceID, container string, hc model.HealthCheck) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	script, ok := p.scripts[container]
	if !ok || len(script) == 0 {
		return nil
	}
	i := p.cursor[container]
	if i >= len(script) {
		i = len(script) - 1
	} else {
		p.cursor[container] = i + 1
	}
	return script[i]
}
