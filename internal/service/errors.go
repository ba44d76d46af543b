package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrExternalService is returned when an external service call fails.
	ErrExternalService = errors.New("external service error")
	// ErrDuplicate is returned when a user uploads the same file into a vault twice.
	ErrDuplicate = errors.New("duplicate upload")
	// ErrEmptyDocument is returned when a document yields no text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// ValidationError represents a validation error with a field name.
// It matches ErrInvalidInput and, when set, the underlying cause.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

// ConflictError is returned when (user, vault, filename) was already uploaded.
type ConflictError struct {
	UserID   string
	Vault    string
	Filename string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("file %s already uploaded to vault %s", e.Filename, e.Vault)
}

// Is reports whether target is ErrDuplicate.
func (e *ConflictError) Is(target error) bool {
	return target == ErrDuplicate
}

// DependencyError wraps a failure of a collaborator (vector index,
// relational store, filesystem). It matches ErrExternalService.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	return []error{ErrExternalService, e.Err}
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
