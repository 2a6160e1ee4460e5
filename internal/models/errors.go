package models

import (
	"errors"
	"fmt"
)

// ErrNoMatch is returned when no mock answers a request. It is an expected
// outcome and must not be reported as a failure.
var ErrNoMatch = errors.New("no mock matched")

// ErrAssistantDisabled is returned when a chat message is sent without a configured assistant
var ErrAssistantDisabled = errors.New("assistant is not configured")

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown id on a single-item operation
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound creates a NotFoundError
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// AssistantDecodeError reports assistant content that is not a structured payload.
// Callers degrade to raw text instead of failing.
type AssistantDecodeError struct {
	Err error
}

func (e *AssistantDecodeError) Error() string {
	return fmt.Sprintf("assistant content is not structured: %v", e.Err)
}

func (e *AssistantDecodeError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a failure reaching the store or the assistant.
// It is surfaced as is and never retried.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
