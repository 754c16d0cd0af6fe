package engine

import (
	"errors"
	"fmt"
)

// FieldError represents an error tied to a field rather than to a crop name.
type FieldError struct {
	// Code identifies the error category.
	Code FieldErrorCode

	// FieldID identifies the affected field.
	FieldID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// FieldErrorCode categorizes field errors.
type FieldErrorCode string

const (
	// ErrCodeFieldNotFound indicates the field has no checkpoint.
	ErrCodeFieldNotFound FieldErrorCode = "FIELD_NOT_FOUND"

	// ErrCodeInvalidCheckpoint indicates a stored checkpoint could not be
	// restored into a history.
	ErrCodeInvalidCheckpoint FieldErrorCode = "INVALID_CHECKPOINT"

	// ErrCodeNoEventLog indicates the engine was built without an event log.
	ErrCodeNoEventLog FieldErrorCode = "NO_EVENT_LOG"
)

// Error implements the error interface.
func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.FieldID)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// IsFieldNotFound returns true if the error is a field-not-found error.
// Uses errors.As to handle wrapped errors.
func IsFieldNotFound(err error) bool {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Code == ErrCodeFieldNotFound
	}
	return false
}

// NewFieldNotFoundError creates a FieldError for a field with no checkpoint.
func NewFieldNotFoundError(fieldID string) *FieldError {
	return &FieldError{
		Code:    ErrCodeFieldNotFound,
		FieldID: fieldID,
		Message: "field has no rotation history",
	}
}

// NewInvalidCheckpointError creates a FieldError for an unrestorable checkpoint.
func NewInvalidCheckpointError(fieldID string, err error) *FieldError {
	return &FieldError{
		Code:    ErrCodeInvalidCheckpoint,
		FieldID: fieldID,
		Message: "stored checkpoint cannot be restored",
		Err:     err,
	}
}
