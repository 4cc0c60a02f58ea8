package pipeline

import (
	"errors"
	"fmt"
)

// Stage names one pipeline stage, in execution order.
type Stage string

const (
	StageSecrets   Stage = "secrets"
	StageBuild     Stage = "build"
	StagePublish   Stage = "publish"
	StageReconcile Stage = "reconcile"
	StageRevise    Stage = "revise"
	StageRollout   Stage = "rollout"
	StageVerify    Stage = "verify"
)

// StageError wraps a stage failure with the stage name and deploy token.
// The pipeline aborts on the first one.
type StageError struct {
	Stage Stage
	Token string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deploy %s: stage %s failed: %v", e.Token, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsStageError reports whether err is (or wraps) a StageError.
func IsStageError(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}

// FailedStage returns the stage err failed at, if err carries one.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
