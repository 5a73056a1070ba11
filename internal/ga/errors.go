// Package ga holds the tracking entities the parameter builder reads from.
// They are plain data holders; validation lives next to each type.
package ga

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports an entity that cannot be tracked as is.
type ValidationError struct {
	Entity string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(entity, format string, args ...any) error {
	return &ValidationError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}
