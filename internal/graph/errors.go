package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/flotilla/internal/model"
)

// CycleError reports a reference cycle in the resource graph.
// Path holds the offending cycle, first and last element equal.
type CycleError struct {
	Path []model.Key
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}
	return fmt.Sprintf("resource reference cycle: %s", strings.Join(parts, " -> "))
}

// IsCycleError reports whether err is (or wraps) a CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// UnresolvedRefError reports a reference to a resource absent from the
// desired-state set.
type UnresolvedRefError struct {
	Source model.Key // resource holding the reference
	Target model.Key // referenced resource that does not exist
	Attr   string    // referenced output attribute
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("resource %s references %s.%s, but %s is not in the desired state",
		e.Source, e.Target, e.Attr, e.Target)
}

// IsUnresolvedRefError reports whether err is (or wraps) an
// UnresolvedRefError.
func IsUnresolvedRefError(err error) bool {
	var ue *UnresolvedRefError
	return errors.As(err, &ue)
}
