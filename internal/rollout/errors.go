package rollout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeoutError reports a rollout that did not stabilize within its wait
// budget: not every new-revision instance reached a healthy target
// status in time. The rollout is stalled, not reverted; old instances
// are left serving.
type TimeoutError struct {
	Token   string
	Service string
	Budget  time.Duration
	Healthy int
	Desired int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rollout %s timed out on service %q: %d of %d instances healthy after %s",
		e.Token, e.Service, e.Healthy, e.Desired, e.Budget)
}

// IsTimeoutError reports whether err is (or wraps) a rollout TimeoutError.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// LaunchFailedError reports that too few new-revision instances launched
// to satisfy the desired count. Per-instance causes are keyed by
// instance ID; instances that did launch are left running.
type LaunchFailedError struct {
	Token    string
	Service  string
	Launched int
	Desired  int
	Failures map[string]error
}

func (e *LaunchFailedError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("rollout %s failed on service %q: launched %d of %d instances (failed: %s)",
		e.Token, e.Service, e.Launched, e.Desired, strings.Join(ids, ", "))
}

// IsLaunchFailedError reports whether err is (or wraps) a LaunchFailedError.
func IsLaunchFailedError(err error) bool {
	var le *LaunchFailedError
	return errors.As(err, &le)
}
