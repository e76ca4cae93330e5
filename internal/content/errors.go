package content

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = eris.New("validation failed")
	// ErrNotFound indicates a code that is not present in the registry.
	ErrNotFound = eris.New("article not found")
	// ErrExists indicates an attempt to add a code that is already registered.
	ErrExists = eris.New("article already exists")
)

// ValidationError describes why a payload or record was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is lets errors.Is and eris.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError formats a *ValidationError.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return NewValidationError(format, args...)
}
