package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/flotilla/internal/model"
)

// TimeoutError reports a startup gate timeout: a dependency never reached
// the required condition within its budget, so the dependent container was
// never started and the task instance is Failed.
type TimeoutError struct {
	Instance   string
	Container  string // container that was waiting
	Dependency string // container that never satisfied the condition
	Condition  model.Condition
	Budget     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("startup gate timeout on instance %s: container %q waited %s for %q to reach %s",
		e.Instance, e.Container, e.Budget, e.Dependency, e.Condition)
}

// IsTimeoutError reports whether err is (or wraps) a gate TimeoutError.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// LaunchError reports a container that failed to start or reach health
// during launch, for reasons other than a dependency timeout.
type LaunchError struct {
	Instance  string
	Container string
	Err       error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch failed on instance %s: container %q: %v", e.Instance, e.Container, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// IsLaunchError reports whether err is (or wraps) a LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
