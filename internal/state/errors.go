package state

import (
	"errors"
	"fmt"

	"github.com/roach88/flotilla/internal/model"
)

// UnresolvedLiveRefError reports a reference that cannot be resolved
// against the live snapshot at apply time. This indicates an ordering bug
// (the dependency was not applied first) or a provider that failed to
// return the expected output attribute.
type UnresolvedLiveRefError struct {
	Ref model.RefVal
	// MissingAttr distinguishes "target resource absent" from "target
	// present but lacks the output attribute".
	MissingAttr bool
}

func (e *UnresolvedLiveRefError) Error() string {
	if e.MissingAttr {
		return fmt.Sprintf("live resource %s has no output attribute %q", e.Ref.Target, e.Ref.Attr)
	}
	return fmt.Sprintf("reference %s cannot be resolved: %s has no live state", e.Ref, e.Ref.Target)
}

// IsUnresolvedLiveRefError reports whether err is (or wraps) an
// UnresolvedLiveRefError.
func IsUnresolvedLiveRefError(err error) bool {
	var ue *UnresolvedLiveRefError
	return errors.As(err, &ue)
}
