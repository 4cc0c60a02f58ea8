package plan

import (
	"errors"
	"fmt"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/state"
)

// ReconciliationError reports a single-resource apply failure. The pass
// halts at the failing resource; Error names the resource key, the action,
// and the underlying condition - never a generic failure message.
type ReconciliationError struct {
	Key    model.Key
	Action Action
	Err    error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed at %s (%s): %v", e.Key, e.Action, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// IsReconciliationError reports whether err is (or wraps) a
// ReconciliationError.
func IsReconciliationError(err error) bool {
	var re *ReconciliationError
	return errors.As(err, &re)
}

// InFlightError reports a rejected reconciliation pass: another pass
// against the same generation is already running.
type InFlightError struct {
	Generation state.Generation
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("reconciliation already in flight for generation %d", e.Generation)
}

// IsInFlightError reports whether err is (or wraps) an InFlightError.
func IsInFlightError(err error) bool {
	var ie *InFlightError
	return errors.As(err, &ie)
}
