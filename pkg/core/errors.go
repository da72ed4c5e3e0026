package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with kind and details
type ExecutionError struct {
	Kind    ErrorKind
	Code    string         // Machine-readable code: element_not_found, timeout, etc.
	Message string         // Human-readable message
	Details map[string]any // Additional context
	Cause   error          // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches another ExecutionError by code, so derived copies still match
// the predefined sentinels.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// MarshalText encodes the full message, cause included, for reports.
func (e *ExecutionError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: msg,
		Details: e.Details,
		Cause:   e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]any) *ExecutionError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: merged,
		Cause:   e.Cause,
	}
}

// Predefined errors
var (
	ErrInvalidRequest = &ExecutionError{
		Kind:    ErrKindInvalidRequest,
		Code:    "invalid_request",
		Message: "invalid batch request",
	}
	ErrSessionUnavailable = &ExecutionError{
		Kind:    ErrKindSessionUnavailable,
		Code:    "session_unavailable",
		Message: "browser session unavailable",
	}
	ErrElementNotFound = &ExecutionError{
		Kind:    ErrKindElementNotFound,
		Code:    "element_not_found",
		Message: "element not found",
	}
	ErrUnsupportedStep = &ExecutionError{
		Kind:    ErrKindUnsupportedStep,
		Code:    "unsupported_step",
		Message: "unsupported step",
	}
	ErrTimeout = &ExecutionError{
		Kind:    ErrKindTimeout,
		Code:    "timeout",
		Message: "step timed out",
	}
	ErrFault = &ExecutionError{
		Kind:    ErrKindFault,
		Code:    "fault",
		Message: "unexpected fault",
	}
	ErrInvalidParams = &ExecutionError{
		Kind:    ErrKindInvalidParams,
		Code:    "invalid_params",
		Message: "invalid step parameters",
	}
	ErrCancelled = &ExecutionError{
		Kind:    ErrKindCancelled,
		Code:    "cancelled",
		Message: "execution cancelled",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(kind ErrorKind, code, message string) *ExecutionError {
	return &ExecutionError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// KindOf extracts the ErrorKind from any error chain. Plain errors are faults.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrKindNone
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return ErrKindFault
}
