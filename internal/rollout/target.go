package rollout

import (
	"context"
	"fmt"
	"sync"
)

// TargetHealth is the load balancer's view of one registered instance.
type TargetHealth string

const (
	// TargetInitial means the target is registered but has not yet passed
	// enough load-balancer health checks.
	TargetInitial   TargetHealth = "initial"
	TargetHealthy   TargetHealth = "healthy"
	TargetUnhealthy TargetHealth = "unhealthy"
	TargetDraining  TargetHealth = "draining"
)

// TargetGroup is the load-balancer boundary. Register adds an instance
// to the target group, Health reports its current target status, and
// Deregister starts draining it.
type TargetGroup interface {
	Register(ctx context.Context, instanceID string) error
	Health(ctx context.Context, instanceID string) (TargetHealth, error)
	Deregister(ctx context.Context, instanceID string) error
}

// MemoryTargetGroup is a deterministic in-memory target group for local
// mode and tests. An unscripted target answers Initial on its first
// health poll and Healthy from then on; Script pins an explicit health
// sequence instead, repeating the last entry once exhausted.
type MemoryTargetGroup struct {
	mu      sync.Mutex
	health  map[string]TargetHealth
	scripts map[string][]TargetHealth
	cursor  map[string]int
	events  []string
}

// NewMemoryTargetGroup creates an empty target group.
func NewMemoryTargetGroup() *MemoryTargetGroup {
	return &MemoryTargetGroup{
		health:  make(map[string]TargetHealth),
		scripts: make(map[string][]TargetHealth),
		cursor:  make(map[string]int),
	}
}

// Script sets the ordered health answers for an instance.
func (tg *MemoryTargetGroup) Script(instanceID string, answers ...TargetHealth) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.scripts[instanceID] = answers
}

// Register implements TargetGroup.
func (tg *MemoryTargetGroup) Register(ctx context.Context, instanceID string) error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if _, ok := tg.health[instanceID]; ok {
		return fmt.Errorf("target %s already registered", instanceID)
	}
	tg.health[instanceID] = TargetInitial
	tg.events = append(tg.events, "register "+instanceID)
	return nil
}

// Health implements TargetGroup.
func (tg *MemoryTargetGroup) Health(ctx context.Context, instanceID string) (TargetHealth, error) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	h, ok := tg.health[instanceID]
	if !ok {
		return "", fmt.Errorf("target %s not registered", instanceID)
	}
	if script := tg.scripts[instanceID]; len(script) > 0 {
		i := tg.cursor[instanceID]
		if i >= len(script) {
			i = len(script) - 1
		} else {
			tg.cursor[instanceID] = i + 1
		}
		tg.health[instanceID] = script[i]
		return script[i], nil
	}
	if h == TargetInitial {
		tg.health[instanceID] = TargetHealthy
	}
	return h, nil
}

// Deregister implements TargetGroup.
func (tg *MemoryTargetGroup) Deregister(ctx context.Context, instanceID string) error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if _, ok := tg.health[instanceID]; !ok {
		return fmt.Errorf("target %s not registered", instanceID)
	}
	tg.health[instanceID] = TargetDraining
	tg.events = append(tg.events, "deregister "+instanceID)
	return nil
}

// Events returns the ordered register/deregister call log.
func (tg *MemoryTargetGroup) Events() []string {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	out := make([]string, len(tg.events))
	copy(out, tg.events)
	return out
}

// Registered reports whether the instance is currently registered and
// not draining.
func (tg *MemoryTargetGroup) Registered(instanceID string) bool {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	h, ok := tg.health[instanceID]
	return ok && h != TargetDraining
}
