// Package engine provides the core types and the concurrency orchestrator for
// cloudscan: task planning, the bounded worker pool, per-task budgets, and the
// run-level shared state (unavailable endpoints, counters).
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an operation failure for retry and reporting logic.
type ErrorClass string

const (
	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	// The only class that is retried, with exponential backoff.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConnectivity indicates an unreachable endpoint or a timed-out
	// call. Never retried; marks the endpoint as not available.
	ErrorClassConnectivity ErrorClass = "connectivity"

	// ErrorClassPermission indicates the caller lacks access to the operation.
	// Terminal and expected under least-privilege credentials.
	ErrorClassPermission ErrorClass = "permission"

	// ErrorClassAbsent indicates the client does not implement the operation.
	// Terminal and expected; marks the result as not available.
	ErrorClassAbsent ErrorClass = "absent"

	// ErrorClassUnexpected is the fallback for everything else.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// OpError is a classified operation failure with call-site context.
type OpError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional provider error code (e.g. "Throttling").
	Code string `json:"code,omitempty"`

	// Namespace and Region identify the endpoint that failed.
	Namespace string `json:"namespace,omitempty"`
	Region    string `json:"region,omitempty"`

	// Operation is the operation being invoked when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Namespace != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (namespace=%s, operation=%s): %s",
			e.Class, e.Message, e.Namespace, e.Operation, e.unwrapMessage())
	}
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation=%s): %s",
			e.Class, e.Message, e.Operation, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *OpError) Is(target error) bool {
	t, ok := target.(*OpError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewConnectivityError creates a new connectivity/timeout error.
func NewConnectivityError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassConnectivity, Message: message, Err: err}
}

// NewPermissionError creates a new permission-denied error.
func NewPermissionError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassPermission, Message: message, Err: err}
}

// NewAbsentError creates a new operation-absent error.
func NewAbsentError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassAbsent, Message: message, Err: err}
}

// NewUnexpectedError creates a new unclassified error.
func NewUnexpectedError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassUnexpected, Message: message, Err: err}
}

// WithEndpoint adds namespace/region context to an error.
func (e *OpError) WithEndpoint(namespace, region string) *OpError {
	e.Namespace = namespace
	e.Region = region
	return e
}

// WithOperation adds operation context to an error.
func (e *OpError) WithOperation(operation string) *OpError {
	e.Operation = operation
	return e
}

// WithCode adds a provider error code to an error.
func (e *OpError) WithCode(code string) *OpError {
	e.Code = code
	return e
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *OpError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConnectivity returns true if the error is a connectivity or timeout error.
func IsConnectivity(err error) bool {
	var e *OpError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConnectivity
	}
	return false
}

// IsPermission returns true if the error is classified as permission-denied.
func IsPermission(err error) bool {
	var e *OpError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermission
	}
	return false
}

// IsAbsent returns true if the operation is missing from the client.
func IsAbsent(err error) bool {
	var e *OpError
	if errors.As(err, &e) {
		return e.Class == ErrorClassAbsent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Only throttling is retryable; connectivity failures fail fast to bound
// latency, and the remaining classes are terminal by definition.
func IsRetryable(err error) bool {
	return IsThrottled(err)
}

// Classify maps an arbitrary error to its class, defaulting to unexpected.
func Classify(err error) ErrorClass {
	var e *OpError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassUnexpected
}
