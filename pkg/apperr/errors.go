// Package apperr defines the client-facing error kinds of the ledger.
//
// Validation and not-found failures are raised by the record stores and
// travel unmodified to the gateway, which maps them to 400 and 404. Any other
// error is treated as unexpected.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is matched by every ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is matched by NotFoundError and UnknownResourceError.
	ErrNotFound = errors.New("not found")

	// ErrUnknownResource is matched by UnknownResourceError.
	ErrUnknownResource = errors.New("unknown resource")
)

// ValidationError lists every field of an input that failed its format check.
type ValidationError struct {
	Entity   string   `json:"entity"`
	Problems []string `json:"problems"`
}

func (e *ValidationError) Error() string {
	return "Validation errors: " + strings.Join(e.Problems, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NotFoundError reports a record id absent from an entity table.
type NotFoundError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Record with id %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnknownResourceError reports an entity name with no registered store.
type UnknownResourceError struct {
	Name string `json:"name"`
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("Invalid resource: %s", e.Name)
}

func (e *UnknownResourceError) Is(target error) bool {
	return target == ErrUnknownResource || target == ErrNotFound
}

func NewValidationError(entity string, problems []string) error {
	return &ValidationError{Entity: entity, Problems: problems}
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func NewUnknownResourceError(name string) error {
	return &UnknownResourceError{Name: name}
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound checks if an error is a missing record or a missing entity
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnknownResource checks if an error is a missing entity
func IsUnknownResource(err error) bool {
	return errors.Is(err, ErrUnknownResource)
}
