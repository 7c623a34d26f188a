package ruleset

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown tenant or rule set
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a rule set name is taken
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotWeighted is returned when a distribution is requested from a
	// rule set of another kind
	ErrNotWeighted = errors.New("rule set is not weighted")
)

// ValidationError reports an invalid definition field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
