// Package errors provides centralized error definitions and error handling utilities
// for the grokbox codebase. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - BackendError: errors from the multipass backend or remote command execution
//   - ProvisionError: errors raised while driving an instance through provisioning
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - InvalidCodebaseError: a codebase argument that cannot be classified
//   - PortConflictError: a requested port already held by a running instance
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewBackendError("launch failed", cause).WithOp("launch").WithOutput(out)
//
//	// Semantic error
//	err := errors.NewNotFoundError("instance", "myproj")
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrVMNotFound) { ... }
//
//	// Check for error types
//	var backendErr *errors.BackendError
//	if errors.As(err, &backendErr) { ... }
//
//	// Use classification helpers
//	if errors.IsUserFacing(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Record-related sentinel errors
var (
	// ErrRecordCorrupted indicates that a stored instance record cannot be decoded.
	ErrRecordCorrupted = New("instance record corrupted")
	// ErrRecordLocked indicates that an instance record is locked by another process.
	ErrRecordLocked = New("instance record is locked")
)

// Backend-related sentinel errors
var (
	// ErrVMNotFound indicates that the backend has no VM with the given name.
	ErrVMNotFound = New("virtual machine not found")
	// ErrTransferFailed indicates that both transfer tiers failed for a tree copy.
	ErrTransferFailed = New("transfer failed")
)

// Readiness-related sentinel errors
var (
	// ErrReadinessTimeout indicates that the service did not answer its health
	// probe within the allotted attempts. Provisioning treats this as a soft
	// failure: the instance stays up, the caller is warned.
	ErrReadinessTimeout = New("service readiness probe timed out")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// GrokboxError is the base interface for all grokbox errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type GrokboxError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// BackendError represents a failure reported by the multipass backend or by a
// command executed inside a guest VM. It carries the operation that failed and
// the raw combined output of the underlying command, which is the only useful
// diagnostic multipass gives.
//
// Example:
//
//	err := errors.NewBackendError("launch failed", cause)
//	err = err.WithOp("launch").WithVM("grokbox-myproj").WithOutput(out)
type BackendError struct {
	baseError
	Op     string
	VM     string
	Output string // Captured command output
}

// NewBackendError creates a new BackendError.
func NewBackendError(message string, cause error) *BackendError {
	return &BackendError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithOp adds the backend operation name to the error context.
func (e *BackendError) WithOp(op string) *BackendError {
	e.Op = op
	return e
}

// WithVM adds the VM name to the error context.
func (e *BackendError) WithVM(vm string) *BackendError {
	e.VM = vm
	return e
}

// WithOutput adds the raw command output to the error context.
func (e *BackendError) WithOutput(output string) *BackendError {
	e.Output = strings.TrimSpace(output)
	return e
}

// WithSeverity sets the error severity.
func (e *BackendError) WithSeverity(s Severity) *BackendError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *BackendError) WithRetryable(r bool) *BackendError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *BackendError) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.VM != "" {
		parts = append(parts, fmt.Sprintf("vm=%s", e.VM))
	}

	prefix := "backend error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("backend error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Output != "" {
		msg = fmt.Sprintf("%s\ncommand output: %s", msg, e.Output)
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *BackendError) Is(target error) bool {
	if _, ok := target.(*BackendError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ProvisionError represents a failure while driving an instance through the
// provisioning pipeline. The stage field pins the failure to the step that
// raised it.
//
// Example:
//
//	err := errors.NewProvisionError("stage failed", cause)
//	err = err.WithInstance("myproj").WithStage("installing")
type ProvisionError struct {
	baseError
	Instance string
	Stage    string
}

// NewProvisionError creates a new ProvisionError.
func NewProvisionError(message string, cause error) *ProvisionError {
	return &ProvisionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithInstance adds the instance name to the error context.
func (e *ProvisionError) WithInstance(name string) *ProvisionError {
	e.Instance = name
	return e
}

// WithStage adds the pipeline stage to the error context.
func (e *ProvisionError) WithStage(stage string) *ProvisionError {
	e.Stage = stage
	return e
}

// WithSeverity sets the error severity.
func (e *ProvisionError) WithSeverity(s Severity) *ProvisionError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *ProvisionError) Error() string {
	var parts []string
	if e.Instance != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.Instance))
	}
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}

	prefix := "provision error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("provision error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ProvisionError) Is(target error) bool {
	if _, ok := target.(*ProvisionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("instance", "myproj")
//	fmt.Println(err) // "instance 'myproj' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("instance name must start with a letter")
//	err = err.WithField("name").WithValue("9lives")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// InvalidCodebaseError represents a codebase argument that is neither an
// existing local directory nor a recognized git URL.
//
// Example:
//
//	err := errors.NewInvalidCodebaseError("/no/such/dir")
type InvalidCodebaseError struct {
	baseError
	Argument string
}

// NewInvalidCodebaseError creates a new InvalidCodebaseError.
func NewInvalidCodebaseError(argument string) *InvalidCodebaseError {
	return &InvalidCodebaseError{
		baseError: baseError{
			message:    fmt.Sprintf("codebase '%s' is neither an existing directory nor a git URL", argument),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Argument: argument,
	}
}

// WithCause adds a cause to the error.
func (e *InvalidCodebaseError) WithCause(cause error) *InvalidCodebaseError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *InvalidCodebaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Is checks if this error matches the target.
func (e *InvalidCodebaseError) Is(target error) bool {
	if _, ok := target.(*InvalidCodebaseError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// PortConflictError represents a requested port that is already recorded for
// another instance whose VM is currently running. The owner name lets the
// user decide whether to stop the other instance or pick a different port.
//
// Example:
//
//	err := errors.NewPortConflictError(8080, "otherproj")
//	fmt.Println(err) // "port 8080 is already used by running instance 'otherproj'"
type PortConflictError struct {
	baseError
	Port  int
	Owner string
}

// NewPortConflictError creates a new PortConflictError.
func NewPortConflictError(port int, owner string) *PortConflictError {
	return &PortConflictError{
		baseError: baseError{
			message:    fmt.Sprintf("port %d is already used by running instance '%s'", port, owner),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Port:  port,
		Owner: owner,
	}
}

// Error returns the formatted error message.
func (e *PortConflictError) Error() string {
	return e.message
}

// Is checks if this error matches the target.
func (e *PortConflictError) Is(target error) bool {
	if _, ok := target.(*PortConflictError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for VM launch", 10*time.Minute)
//	fmt.Println(err) // "timeout error: waiting for VM launch (timeout: 10m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing GrokboxError with IsRetryable() returning true
//   - TimeoutError instances
//   - Errors wrapping ErrTimeout
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    time.Sleep(backoff)
//	    return retry(operation)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check if error implements GrokboxError
	var gbErr GrokboxError
	if As(err, &gbErr) {
		return gbErr.IsRetryable()
	}

	// Check for known retryable sentinel errors
	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
// This checks for:
//   - Errors implementing GrokboxError with IsUserFacing() returning true
//   - Semantic errors (NotFoundError, ValidationError, InvalidCodebaseError,
//     PortConflictError, TimeoutError)
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    displayToUser(err.Error())
//	} else {
//	    displayToUser("An internal error occurred")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	// Check if error implements GrokboxError
	var gbErr GrokboxError
	if As(err, &gbErr) {
		return gbErr.IsUserFacing()
	}

	// Semantic errors are always user-facing
	var notFound *NotFoundError
	var validation *ValidationError
	var invalidCodebase *InvalidCodebaseError
	var portConflict *PortConflictError
	var timeout *TimeoutError

	if As(err, &notFound) || As(err, &validation) ||
		As(err, &invalidCodebase) || As(err, &portConflict) || As(err, &timeout) {
		return true
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement GrokboxError.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    log.Error("critical failure", "err", err)
//	case errors.SeverityWarning:
//	    log.Warn("warning", "err", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	// Check if error implements GrokboxError
	var gbErr GrokboxError
	if As(err, &gbErr) {
		return gbErr.Severity()
	}

	// Default to Error severity for unknown errors
	return SeverityError
}

// IsDomainError returns true if the error is a domain-specific error
// (BackendError or ProvisionError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var backendErr *BackendError
	var provisionErr *ProvisionError

	return As(err, &backendErr) || As(err, &provisionErr)
}

// IsSemanticError returns true if the error is a semantic error
// (NotFoundError, ValidationError, InvalidCodebaseError, PortConflictError,
// or TimeoutError).
func IsSemanticError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	var validation *ValidationError
	var invalidCodebase *InvalidCodebaseError
	var portConflict *PortConflictError
	var timeout *TimeoutError

	return As(err, &notFound) || As(err, &validation) ||
		As(err, &invalidCodebase) || As(err, &portConflict) || As(err, &timeout)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the GrokboxError interface.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to provision instance")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to provision instance %s", name)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
