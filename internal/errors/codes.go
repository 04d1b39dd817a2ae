package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a task-engine failure. The code drives retry and
// fallback policy in the orchestrator, so every external failure surface
// maps to exactly one code.
type ErrorCode string

const (
	// ErrCodeTaskBuildFailed indicates prompt construction failed. Fatal, never retried.
	ErrCodeTaskBuildFailed ErrorCode = "TASK_BUILD_FAILED"
	// ErrCodeTaskExecutionFailed indicates a network, timeout or rate-limit
	// failure. Retried up to the configured bound, then surfaced.
	ErrCodeTaskExecutionFailed ErrorCode = "TASK_EXECUTION_FAILED"
	// ErrCodeResponseParseFailed indicates the provider returned text that
	// could not be coerced into a structure. Retried as a fresh execution.
	ErrCodeResponseParseFailed ErrorCode = "RESPONSE_PARSE_FAILED"
	// ErrCodeValidationFailed indicates a structurally invalid result.
	// Retried as a fresh execution, since re-sampling may succeed.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeFabricationSuspected indicates funding data tripped the
	// fabrication heuristic. Not retried; downgraded to sentinels.
	ErrCodeFabricationSuspected ErrorCode = "FABRICATION_SUSPECTED"
	// ErrCodeProviderUnavailable indicates an unconfigured adapter.
	// Never retried against the same adapter; triggers immediate fallback.
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	// ErrCodeTimeout indicates a single external call exceeded its wall-clock
	// bound. Counts as a retryable execution failure.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeContextCanceled indicates the caller canceled the operation.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
)

// Error is a structured task-engine error.
type Error struct {
	Code    ErrorCode
	Message string
	// Task names the task whose execution produced the error, when known.
	Task  string
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Task != "" {
		msg = fmt.Sprintf("task %q: %s", e.Task, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithTask attaches the task name to the error.
func (e *Error) WithTask(task string) *Error {
	e.Task = task
	return e
}

// Convenience constructors for the taxonomy.

// TaskBuildFailed creates a fatal prompt-construction error.
func TaskBuildFailed(msg string) *Error {
	return &Error{Code: ErrCodeTaskBuildFailed, Message: msg}
}

// TaskExecutionFailed creates a retryable execution error.
func TaskExecutionFailed(msg string, cause error) *Error {
	return &Error{Code: ErrCodeTaskExecutionFailed, Message: msg, Cause: cause}
}

// ResponseParseFailed creates a parse error.
func ResponseParseFailed(msg string, cause error) *Error {
	return &Error{Code: ErrCodeResponseParseFailed, Message: msg, Cause: cause}
}

// ValidationFailed creates a validation error.
func ValidationFailed(msg string) *Error {
	return &Error{Code: ErrCodeValidationFailed, Message: msg}
}

// FabricationSuspected creates a fabrication-heuristic error.
func FabricationSuspected(msg string) *Error {
	return &Error{Code: ErrCodeFabricationSuspected, Message: msg}
}

// ProviderUnavailable creates an unconfigured-adapter error.
func ProviderUnavailable(provider string) *Error {
	return &Error{Code: ErrCodeProviderUnavailable, Message: fmt.Sprintf("provider not configured: %s", provider)}
}

// Timeout creates a per-call timeout error.
func Timeout(msg string) *Error {
	return &Error{Code: ErrCodeTimeout, Message: msg}
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(cause error) *Error {
	return &Error{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// IsCode checks whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the error code from any error, or the default if none.
func CodeOf(err error, defaultCode ErrorCode) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return defaultCode
}

// IsRetryable reports whether the orchestrator may retry the failed execution.
// Build failures, fabrication downgrades, unconfigured providers and caller
// cancellation are terminal; everything else is worth another sample.
func IsRetryable(err error) bool {
	switch CodeOf(err, ErrCodeTaskExecutionFailed) {
	case ErrCodeTaskBuildFailed, ErrCodeFabricationSuspected, ErrCodeProviderUnavailable, ErrCodeContextCanceled:
		return false
	default:
		return true
	}
}
