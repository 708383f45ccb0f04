package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
)

// ValidationError is a user-correctable input problem. It is detected
// before any mutation happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an unknown entity on explicit lookup.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageError wraps an unexpected failure reading or writing a store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "storage " + e.Op + " failed"
	}
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

// NewValidationError is a shorthand used at the service boundary.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// SessionNotFound builds the NotFoundError used by session lookups.
func SessionNotFound(id SessionID) error {
	return &NotFoundError{Kind: "session", ID: string(id)}
}

// MessageNotFound builds the NotFoundError used by message lookups.
func MessageNotFound(id MessageID) error {
	return &NotFoundError{Kind: "message", ID: string(id)}
}
