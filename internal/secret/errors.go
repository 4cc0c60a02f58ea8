package secret

import (
	"errors"
	"fmt"

	"github.com/roach88/flotilla/internal/model"
)

// Code categorizes secret resolution failures.
type Code string

const (
	// CodeNotFound means the reference does not exist in the store.
	CodeNotFound Code = "SECRET_NOT_FOUND"
	// CodeAccessDenied means the caller lacks permission to read it.
	CodeAccessDenied Code = "SECRET_ACCESS_DENIED"
)

// ErrNotFound and ErrAccessDenied are the sentinel errors a Store
// implementation returns (possibly wrapped) to classify failures.
var (
	ErrNotFound     = errors.New("secret not found")
	ErrAccessDenied = errors.New("secret access denied")
)

// ResolutionError is a fatal pre-flight secret failure. It names the
// container, the environment variable, and the reference.
type ResolutionError struct {
	Code      Code
	Container string
	Env       string
	Ref       string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: container %q env %q ref %q: %v", e.Code, e.Container, e.Env, e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// IsResolutionError reports whether err is (or wraps) a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

func wrapResolveError(container string, sb model.SecretBinding, err error) error {
	code := CodeNotFound
	if errors.Is(err, ErrAccessDenied) {
		code = CodeAccessDenied
	}
	return &ResolutionError{Code: code, Container: container, Env: sb.Env, Ref: sb.Ref, Err: err}
}
