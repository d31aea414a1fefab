package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError represents a resource not found error with contextual information.
//
// The error includes resource type and name for precise error reporting and
// supports custom error messages for specific use cases.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found (e.g. "server")
	ResourceType string

	// ResourceName is the specific identifier of the resource that was not found
	ResourceName string

	// Message overrides the default message when set
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
//
// Example:
//
//	desc, err := store.Get("worker-a")
//	if api.IsNotFound(err) {
//	    return fmt.Errorf("unknown worker")
//	}
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError with the specified resource type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

// NewServerNotFoundError is a convenience wrapper for the most common lookup failure.
func NewServerNotFoundError(name string) *NotFoundError {
	return NewNotFoundError("server", name)
}

// DuplicateServerNameError is returned when registering a name that already exists.
// The store is left unchanged.
type DuplicateServerNameError struct {
	Name string
}

func (e *DuplicateServerNameError) Error() string {
	return fmt.Sprintf("server %s already registered", e.Name)
}

func NewDuplicateServerNameError(name string) *DuplicateServerNameError {
	return &DuplicateServerNameError{Name: name}
}

func IsDuplicateServerName(err error) bool {
	var target *DuplicateServerNameError
	return errors.As(err, &target)
}

// InvalidTransitionError is returned when a status change violates the lifecycle state machine.
type InvalidTransitionError struct {
	Name string
	From ServerStatus
	To   ServerStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("server %s: invalid status transition %s -> %s", e.Name, e.From, e.To)
}

func NewInvalidTransitionError(name string, from, to ServerStatus) *InvalidTransitionError {
	return &InvalidTransitionError{Name: name, From: from, To: to}
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// StartupTimeoutError is returned when a spawned worker never became ready.
type StartupTimeoutError struct {
	Name     string
	Attempts int
	Waited   time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("server %s did not become ready after %d readiness probes (%s)", e.Name, e.Attempts, e.Waited)
}

func NewStartupTimeoutError(name string, attempts int, waited time.Duration) *StartupTimeoutError {
	return &StartupTimeoutError{Name: name, Attempts: attempts, Waited: waited}
}

func IsStartupTimeout(err error) bool {
	var target *StartupTimeoutError
	return errors.As(err, &target)
}

// StartupError is returned when a worker could not be spawned at all, or exited
// before it became ready.
type StartupError struct {
	Name   string
	Reason string
	Err    error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to start server %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to start server %s: %s", e.Name, e.Reason)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

func NewStartupError(name, reason string, err error) *StartupError {
	return &StartupError{Name: name, Reason: reason, Err: err}
}

func IsStartupError(err error) bool {
	var target *StartupError
	return errors.As(err, &target)
}

// HealthCheckFailureError describes a failed liveness probe.
type HealthCheckFailureError struct {
	Name     string
	Endpoint string
	Err      error
}

func (e *HealthCheckFailureError) Error() string {
	return fmt.Sprintf("health check for server %s at %s failed: %v", e.Name, e.Endpoint, e.Err)
}

func (e *HealthCheckFailureError) Unwrap() error {
	return e.Err
}

func NewHealthCheckFailureError(name, endpoint string, err error) *HealthCheckFailureError {
	return &HealthCheckFailureError{Name: name, Endpoint: endpoint, Err: err}
}

func IsHealthCheckFailure(err error) bool {
	var target *HealthCheckFailureError
	return errors.As(err, &target)
}

// RoutingNoCandidateError is returned when no server is registered at all.
type RoutingNoCandidateError struct {
	Method string
}

func (e *RoutingNoCandidateError) Error() string {
	return fmt.Sprintf("no server registered to handle %q", e.Method)
}

func NewRoutingNoCandidateError(method string) *RoutingNoCandidateError {
	return &RoutingNoCandidateError{Method: method}
}

func IsRoutingNoCandidate(err error) bool {
	var target *RoutingNoCandidateError
	return errors.As(err, &target)
}

// ExecutionTimeoutError is returned when a single delivery attempt ran out of time.
type ExecutionTimeoutError struct {
	Server  string
	Timeout time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("request to server %s timed out after %s", e.Server, e.Timeout)
}

func NewExecutionTimeoutError(server string, timeout time.Duration) *ExecutionTimeoutError {
	return &ExecutionTimeoutError{Server: server, Timeout: timeout}
}

func IsExecutionTimeout(err error) bool {
	var target *ExecutionTimeoutError
	return errors.As(err, &target)
}

// ExecutionFailureError wraps a transport error or an error reported by the worker.
type ExecutionFailureError struct {
	Server string
	Err    error
}

func (e *ExecutionFailureError) Error() string {
	return fmt.Sprintf("request to server %s failed: %v", e.Server, e.Err)
}

func (e *ExecutionFailureError) Unwrap() error {
	return e.Err
}

func NewExecutionFailureError(server string, err error) *ExecutionFailureError {
	return &ExecutionFailureError{Server: server, Err: err}
}

func IsExecutionFailure(err error) bool {
	var target *ExecutionFailureError
	return errors.As(err, &target)
}

// AllFallbacksExhaustedError is returned when the target and every fallback failed.
type AllFallbacksExhaustedError struct {
	RequestID string
	Attempts  []AttemptRecord
}

func (e *AllFallbacksExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Server, a.Error))
	}
	return fmt.Sprintf("request %s failed on all %d candidates [%s]", e.RequestID, len(e.Attempts), strings.Join(parts, "; "))
}

func NewAllFallbacksExhaustedError(requestID string, attempts []AttemptRecord) *AllFallbacksExhaustedError {
	return &AllFallbacksExhaustedError{RequestID: requestID, Attempts: append([]AttemptRecord(nil), attempts...)}
}

func IsAllFallbacksExhausted(err error) bool {
	var target *AllFallbacksExhaustedError
	return errors.As(err, &target)
}

// ShutdownTimeoutError is returned when a process did not exit within grace period and kill timeout.
type ShutdownTimeoutError struct {
	Name   string
	Waited time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("server %s did not exit within %s", e.Name, e.Waited)
}

func NewShutdownTimeoutError(name string, waited time.Duration) *ShutdownTimeoutError {
	return &ShutdownTimeoutError{Name: name, Waited: waited}
}

func IsShutdownTimeout(err error) bool {
	var target *ShutdownTimeoutError
	return errors.As(err, &target)
}

// ErrorKindOf maps an error from the taxonomy to its ErrorKind.
func ErrorKindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case IsRoutingNoCandidate(err):
		return ErrorKindNoCandidate
	case IsAllFallbacksExhausted(err):
		return ErrorKindExhausted
	case IsExecutionTimeout(err):
		return ErrorKindTimeout
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorKindCallerTimeout
	default:
		return ErrorKindFailure
	}
}
