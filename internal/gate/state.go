package gate

import (
	"sync"

	"github.com/roach88/flotilla/internal/model"
)

// ContainerState is the per-container lifecycle state.
type ContainerState string

const (
	StatePending   ContainerState = "PENDING"
	StateStarting  ContainerState = "STARTING"
	StateRunning   ContainerState = "RUNNING"
	StateHealthy   ContainerState = "HEALTHY"
	StateUnhealthy ContainerState = "UNHEALTHY"
	StateStopped   ContainerState = "STOPPED"
)

// started reports whether the state is at or past Running.
func (s ContainerState) started() bool {
	switch s {
	case StateRunning, StateHealthy, StateUnhealthy, StateStopped:
		return true
	default:
		return false
	}
}

// TaskState is the task instance lifecycle state.
type TaskState string

const (
	TaskProvisioning TaskState = "PROVISIONING"
	TaskRunning      TaskState = "RUNNING"
	TaskFailed       TaskState = "FAILED"
	TaskStopped      TaskState = "STOPPED"
	TaskCancelled    TaskState = "CANCELLED"
)

// ContainerStatus is the tracked status of one container in an instance.
type ContainerStatus struct {
	State    ContainerState
	ExitCode int
}

// TaskInstance is one launched instance of a task definition revision.
// Safe for concurrent reads while the gate drives it.
type TaskInstance struct {
	ID       string
	Revision int

	mu         sync.Mutex
	state      TaskState
	containers map[string]*ContainerStatus
	monitors   map[string]*HealthMonitor
}

func newTaskInstance(id string, td model.TaskDefinition) *TaskInstance {
	inst := &TaskInstance{
		ID:         id,
		Revision:   td.Revision,
		state:      TaskProvisioning,
		containers: make(map[string]*ContainerStatus, len(td.Containers)),
		monitors:   make(map[string]*HealthMonitor),
	}
	for _, c := range td.Containers {
		inst.containers[c.Name] = &ContainerStatus{State: StatePending}
	}
	return inst
}

// State returns the instance state.
func (ti *TaskInstance) State() TaskState {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.state
}

// ContainerState returns the tracked state of one container.
func (ti *TaskInstance) ContainerState(name string) ContainerState {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if cs, ok := ti.containers[name]; ok {
		return cs.State
	}
	return StatePending
}

// ContainerExitCode returns the recorded exit code for a stopped
// container.
func (ti *TaskInstance) ContainerExitCode(name string) int {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if cs, ok := ti.containers[name]; ok {
		return cs.ExitCode
	}
	return 0
}

func (ti *TaskInstance) setTaskState(s TaskState) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.state = s
}

func (ti *TaskInstance) setContainerState(name string, s ContainerState) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.containers[name].State = s
}

func (ti *TaskInstance) setStopped(name string, exitCode int) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.containers[name].State = StateStopped
	ti.containers[name].ExitCode = exitCode
}

func (ti *TaskInstance) snapshot(name string) ContainerStatus {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return *ti.containers[name]
}

// conditionMet evaluates a startup condition against the dependency's
// tracked status.
func conditionMet(cond model.Condition, cs ContainerStatus) bool {
	switch cond {
	case model.ConditionStart:
		return cs.State.started()
	case model.ConditionHealthy:
		return cs.State == StateHealthy
	case model.ConditionComplete:
		return cs.State == StateStopped
	case model.ConditionSuccess:
		return cs.State == StateStopped && cs.ExitCode == 0
	default:
		return false
	}
}

// conditionImpossible reports whether the dependency can no longer
// satisfy the condition, regardless of remaining budget.
func conditionImpossible(cond model.Condition, cs ContainerStatus) bool {
	switch cond {
	case model.ConditionHealthy:
		// A stopped container will never probe healthy again, and an
		// unhealthy one has exhausted its retries.
		return cs.State == StateStopped || cs.State == StateUnhealthy
	case model.ConditionSuccess:
		return cs.State == StateStopped && cs.ExitCode != 0
	default:
		return false
	}
}
