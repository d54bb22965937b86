package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound is returned when a referenced node is absent
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeInvalidInput covers malformed dates, non-positive limits and self references
	ErrorTypeInvalidInput ErrorType = "invalid_input"
	// ErrorTypeConflict is reserved for structural constraint violations
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeCancelled represents a fired timeout or cancellation
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeInternal represents storage-layer failures
	ErrorTypeInternal ErrorType = "internal"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// ErrNotFound is returned when a node referenced by an operation does not exist
type ErrNotFound struct {
	*BaseError
	Entity string
	ID     string
}

func NewNotFound(entity string, id any) *ErrNotFound {
	idStr := fmt.Sprint(id)
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", entity, idStr), nil),
		Entity:    entity,
		ID:        idStr,
	}
}

// ErrInvalidInput is returned when an argument fails validation
type ErrInvalidInput struct {
	*BaseError
	Field  string
	Reason string
}

func NewInvalidInput(field, reason string) *ErrInvalidInput {
	return &ErrInvalidInput{
		BaseError: NewBaseError(ErrorTypeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConflict is returned when a mutation would violate a structural constraint
type ErrConflict struct {
	*BaseError
	Entity string
	ID     string
}

func NewConflict(entity string, id any, reason string) *ErrConflict {
	idStr := fmt.Sprint(id)
	return &ErrConflict{
		BaseError: NewBaseError(ErrorTypeConflict, fmt.Sprintf("%s %s: %s", entity, idStr, reason), nil),
		Entity:    entity,
		ID:        idStr,
	}
}

// ErrCancelled is returned when the caller's context fires mid-operation
type ErrCancelled struct {
	*BaseError
	Operation string
}

func NewCancelled(operation string, err error) *ErrCancelled {
	return &ErrCancelled{
		BaseError: NewBaseError(ErrorTypeCancelled, fmt.Sprintf("operation cancelled: %s", operation), err),
		Operation: operation,
	}
}

// ErrInternal wraps storage-layer failures
type ErrInternal struct {
	*BaseError
	Operation string
}

func NewInternal(operation string, err error) *ErrInternal {
	return &ErrInternal{
		BaseError: NewBaseError(ErrorTypeInternal, fmt.Sprintf("internal failure: %s", operation), err),
		Operation: operation,
	}
}

// Helper functions

// KindOf returns the error type of err, or ErrorTypeInternal for foreign errors.
func KindOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var typed interface{ errorType() ErrorType }
	if stderrors.As(err, &typed) {
		return typed.errorType()
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeCancelled
	}
	return ErrorTypeInternal
}

func (e *BaseError) errorType() ErrorType { return e.Type }

// MessageOf returns the message of a typed error without the wrapped cause,
// or "" for errors outside this package.
func MessageOf(err error) string {
	var typed interface{ message() string }
	if stderrors.As(err, &typed) {
		return typed.message()
	}
	return ""
}

func (e *BaseError) message() string { return e.Message }

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && KindOf(err) == errType
}

func IsNotFound(err error) bool     { return IsErrorType(err, ErrorTypeNotFound) }
func IsInvalidInput(err error) bool { return IsErrorType(err, ErrorTypeInvalidInput) }
func IsConflict(err error) bool     { return IsErrorType(err, ErrorTypeConflict) }
func IsCancelled(err error) bool    { return IsErrorType(err, ErrorTypeCancelled) }

// IsRetryable checks if an error is retryable. Only storage failures are;
// the engine itself never retries.
func IsRetryable(err error) bool {
	return IsErrorType(err, ErrorTypeInternal)
}

// FromContext converts a context error into ErrCancelled and passes
// anything else through unchanged.
func FromContext(operation string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return NewCancelled(operation, err)
	}
	return err
}
