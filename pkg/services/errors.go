package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a book does not exist
	ErrNotFound = errors.New("book not found")

	// ErrForbidden is returned when a book belongs to another user
	ErrForbidden = errors.New("book belongs to another user")

	// ErrUnauthorized is returned when no authenticated user is present
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBadRequest is returned when a request argument fails validation
	ErrBadRequest = errors.New("bad request")
)

// ValidationError wraps field-specific validation errors. It unwraps to
// ErrBadRequest so callers can branch on the whole class.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrBadRequest
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
