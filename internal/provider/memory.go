package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/flotilla/internal/model"
)

// Op identifies a provider operation in the memory provider's call log.
type Op string

const (
	OpCreate Op = "create"
	OpRead   Op = "read"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call is one recorded provider invocation.
type Call struct {
	Op  Op
	Key model.Key
}

// Memory is a deterministic in-memory provider. Generated identifiers are
// derived from a per-type counter ("net-000001"), so repeated runs over
// the same plan produce identical live attributes - a requirement for
// golden-file comparison in the harness.
//
// Thread-safe; the reconciler is single-flight but tests may poke at the
// provider concurrently.
type Memory struct {
	mu       sync.Mutex
	live     map[model.Key]model.Attrs
	counters map[string]int
	calls    []Call

	// failures maps "op type.name" to an injected error, consumed on use.
	failures map[string]error
}

// NewMemory creates an empty memory provider.
func NewMemory() *Memory {
	return &Memory{
		live:     make(map[model.Key]model.Attrs),
		counters: make(map[string]int),
		failures: make(map[string]error),
	}
}

// FailNext injects an error for the next matching operation on key.
func (m *Memory) FailNext(op Op, key model.Key, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[failureKey(op, key)] = err
}

func failureKey(op Op, key model.Key) string {
	return string(op) + " " + key.String()
}

func (m *Memory) takeFailure(op Op, key model.Key) error {
	fk := failureKey(op, key)
	if err, ok := m.failures[fk]; ok {
		delete(m.failures, fk)
		return err
	}
	return nil
}

// Calls returns a copy of the recorded call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Create provisions the resource and returns its live attributes: the
// input attributes plus generated identifiers and type-specific outputs.
func (m *Memory) Create(ctx context.Context, key model.Key, attrs model.Attrs) (model.Attrs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpCreate, Key: key})
	if err := m.takeFailure(OpCreate, key); err != nil {
		return nil, err
	}
	if _, exists := m.live[key]; exists {
		return nil, fmt.Errorf("resource %s already exists", key)
	}

	m.counters[key.Type]++
	live := attrs.Clone()
	if live == nil {
		live = model.Attrs{}
	}
	id := fmt.Sprintf("%s-%06d", typePrefix(key.Type), m.counters[key.Type])
	live["id"] = model.StringVal(id)
	live["arn"] = model.StringVal(fmt.Sprintf("arn:sim:%s/%s/%s", key.Type, key.Name, id))
	for k, v := range typeOutputs(key, id) {
		live[k] = v
	}

	m.live[key] = live
	return live.Clone(), nil
}

// Read returns the live attributes for a key.
func (m *Memory) Read(ctx context.Context, key model.Key) (model.Attrs, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpRead, Key: key})
	if err := m.takeFailure(OpRead, key); err != nil {
		return nil, false, err
	}
	live, ok := m.live[key]
	if !ok {
		return nil, false, nil
	}
	return live.Clone(), true, nil
}

// Update mutates the resource in place, preserving generated identifiers.
func (m *Memory) Update(ctx context.Context, key model.Key, attrs model.Attrs) (model.Attrs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpUpdate, Key: key})
	if err := m.takeFailure(OpUpdate, key); err != nil {
		return nil, err
	}
	prior, ok := m.live[key]
	if !ok {
		return nil, fmt.Errorf("resource %s does not exist", key)
	}

	live := attrs.Clone()
	if live == nil {
		live = model.Attrs{}
	}
	// Generated outputs survive updates.
	for _, generated := range []string{"id", "arn", "repository_url", "dns_name", "revision"} {
		if v, present := prior[generated]; present {
			if _, overridden := live[generated]; !overridden {
				live[generated] = v
			}
		}
	}
	m.live[key] = live
	return live.Clone(), nil
}

// Delete removes the resource.
func (m *Memory) Delete(ctx context.Context, key model.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpDelete, Key: key})
	if err := m.takeFailure(OpDelete, key); err != nil {
		return err
	}
	if _, ok := m.live[key]; !ok {
		return fmt.Errorf("resource %s does not exist", key)
	}
	delete(m.live, key)
	return nil
}

// Exists reports whether the provider holds live state for the key.
func (m *Memory) Exists(key model.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[key]
	return ok
}

func typePrefix(typeTag string) string {
	switch typeTag {
	case "network":
		return "net"
	case "subnet":
		return "sub"
	case "security_group":
		return "sg"
	case "registry_repository":
		return "repo"
	case "log_group":
		return "log"
	case "iam_role":
		return "role"
	case "secret":
		return "sec"
	case "cluster":
		return "clu"
	case "task_definition":
		return "td"
	case "target_group":
		return "tg"
	case "load_balancer":
		return "lb"
	case "listener":
		return "lsn"
	case "service":
		return "svc"
	case "dns_record":
		return "dns"
	default:
		return typeTag
	}
}

// typeOutputs returns extra generated outputs beyond id/arn for types
// whose consumers reference richer attributes.
func typeOutputs(key model.Key, id string) model.Attrs {
	switch key.Type {
	case "registry_repository":
		return model.Attrs{"repository_url": model.StringVal(fmt.Sprintf("registry.sim/%s", key.Name))}
	case "load_balancer":
		return model.Attrs{"dns_name": model.StringVal(fmt.Sprintf("%s.elb.sim", id))}
	case "task_definition":
		return model.Attrs{"revision": model.IntVal(1)}
	default:
		return nil
	}
}

// Seed restores live attributes recorded by an earlier run, without
// logging a call. The per-type counter advances past the seeded
// identifier so later creates never collide with restored resources.
func (m *Memory) Seed(key model.Key, attrs model.Attrs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[key] = attrs.Clone()
	if id, ok := attrs["id"].(model.StringVal); ok {
		var n int
		if _, err := fmt.Sscanf(string(id), typePrefix(key.Type)+"-%06d", &n); err == nil && n > m.counters[key.Type] {
			m.counters[key.Type] = n
		}
	}
}
