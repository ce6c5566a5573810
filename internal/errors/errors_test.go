package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// BackendError Tests
// -----------------------------------------------------------------------------

func TestNewBackendError(t *testing.T) {
	cause := ErrVMNotFound
	err := NewBackendError("launch failed", cause)

	if err.message != "launch failed" {
		t.Errorf("message = %q, want %q", err.message, "launch failed")
	}
	if err.cause != cause {
		t.Errorf("cause = %v, want %v", err.cause, cause)
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestBackendError_WithMethods(t *testing.T) {
	err := NewBackendError("test", nil).
		WithOp("launch").
		WithVM("grokbox-myproj").
		WithOutput("  launch failed: image not found\n").
		WithSeverity(SeverityCritical).
		WithRetryable(true)

	if err.Op != "launch" {
		t.Errorf("Op = %q, want %q", err.Op, "launch")
	}
	if err.VM != "grokbox-myproj" {
		t.Errorf("VM = %q, want %q", err.VM, "grokbox-myproj")
	}
	if err.Output != "launch failed: image not found" {
		t.Errorf("Output = %q, want trimmed output", err.Output)
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
}

func TestBackendError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *BackendError
		want string
	}{
		{
			name: "basic error",
			err:  NewBackendError("test error", nil),
			want: "backend error: test error",
		},
		{
			name: "with op",
			err:  NewBackendError("test error", nil).WithOp("stop"),
			want: "backend error [op=stop]: test error",
		},
		{
			name: "with op and vm",
			err:  NewBackendError("test error", ErrVMNotFound).WithOp("start").WithVM("grokbox-x"),
			want: "backend error [op=start, vm=grokbox-x]: test error: virtual machine not found",
		},
		{
			name: "with output",
			err:  NewBackendError("exec failed", nil).WithOp("exec").WithOutput("permission denied"),
			want: "backend error [op=exec]: exec failed\ncommand output: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBackendError_Is(t *testing.T) {
	err := NewBackendError("test", ErrVMNotFound).WithOp("delete")

	// Should match BackendError type
	if !Is(err, &BackendError{}) {
		t.Error("Is(BackendError{}) = false, want true")
	}

	// Should match wrapped sentinel error
	if !Is(err, ErrVMNotFound) {
		t.Error("Is(ErrVMNotFound) = false, want true")
	}

	// Should not match unrelated errors
	if Is(err, ErrRecordCorrupted) {
		t.Error("Is(ErrRecordCorrupted) = true, want false")
	}
}

func TestBackendError_Unwrap(t *testing.T) {
	cause := ErrVMNotFound
	err := NewBackendError("test", cause)

	if unwrapped := Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
}

// -----------------------------------------------------------------------------
// ProvisionError Tests
// -----------------------------------------------------------------------------

func TestNewProvisionError(t *testing.T) {
	cause := ErrTimeout
	err := NewProvisionError("stage failed", cause)

	if err.message != "stage failed" {
		t.Errorf("message = %q, want %q", err.message, "stage failed")
	}
	if err.cause != cause {
		t.Errorf("cause = %v, want %v", err.cause, cause)
	}
}

func TestProvisionError_WithMethods(t *testing.T) {
	err := NewProvisionError("test", nil).
		WithInstance("myproj").
		WithStage("installing").
		WithSeverity(SeverityCritical)

	if err.Instance != "myproj" {
		t.Errorf("Instance = %q, want %q", err.Instance, "myproj")
	}
	if err.Stage != "installing" {
		t.Errorf("Stage = %q, want %q", err.Stage, "installing")
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
}

func TestProvisionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ProvisionError
		want string
	}{
		{
			name: "basic error",
			err:  NewProvisionError("test error", nil),
			want: "provision error: test error",
		},
		{
			name: "with instance",
			err:  NewProvisionError("test error", nil).WithInstance("myproj"),
			want: "provision error [instance=myproj]: test error",
		},
		{
			name: "with all fields",
			err:  NewProvisionError("failed", ErrTransferFailed).WithInstance("myproj").WithStage("transferring-artifacts"),
			want: "provision error [instance=myproj, stage=transferring-artifacts]: failed: transfer failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProvisionError_Is(t *testing.T) {
	err := NewProvisionError("test", ErrTransferFailed)

	if !Is(err, &ProvisionError{}) {
		t.Error("Is(ProvisionError{}) = false, want true")
	}
	if !Is(err, ErrTransferFailed) {
		t.Error("Is(ErrTransferFailed) = false, want true")
	}
	if Is(err, &BackendError{}) {
		t.Error("Is(BackendError{}) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// NotFoundError Tests
// -----------------------------------------------------------------------------

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("instance", "myproj")

	if err.ResourceType != "instance" {
		t.Errorf("ResourceType = %q, want %q", err.ResourceType, "instance")
	}
	if err.ResourceID != "myproj" {
		t.Errorf("ResourceID = %q, want %q", err.ResourceID, "myproj")
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
}

func TestNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *NotFoundError
		want string
	}{
		{
			name: "basic error",
			err:  NewNotFoundError("instance", "abc"),
			want: "instance 'abc' not found",
		},
		{
			name: "with cause",
			err:  NewNotFoundError("record", "/path").WithCause(fmt.Errorf("IO error")),
			want: "record '/path' not found: IO error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotFoundError_Is(t *testing.T) {
	err := NewNotFoundError("instance", "abc")

	if !Is(err, &NotFoundError{}) {
		t.Error("Is(NotFoundError{}) = false, want true")
	}
	// NotFoundError does not wrap sentinel errors by default
	if Is(err, ErrVMNotFound) {
		t.Error("Is(ErrVMNotFound) = true, want false (not wrapped)")
	}
}

// -----------------------------------------------------------------------------
// ValidationError Tests
// -----------------------------------------------------------------------------

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("instance name cannot be empty")

	if err.message != "instance name cannot be empty" {
		t.Errorf("message = %q, want %q", err.message, "instance name cannot be empty")
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
}

func TestValidationError_WithMethods(t *testing.T) {
	err := NewValidationError("invalid value").
		WithField("name").
		WithValue("").
		WithCause(fmt.Errorf("must not be empty"))

	if err.Field != "name" {
		t.Errorf("Field = %q, want %q", err.Field, "name")
	}
	if err.Value != "" {
		t.Errorf("Value = %v, want empty string", err.Value)
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "basic error",
			err:  NewValidationError("invalid input"),
			want: "validation error: invalid input",
		},
		{
			name: "with field",
			err:  NewValidationError("cannot be empty").WithField("name"),
			want: "validation error [field=name]: cannot be empty",
		},
		{
			name: "with field and value",
			err:  NewValidationError("must be between 1 and 65535").WithField("port").WithValue(-1),
			want: "validation error [field=port, value=-1]: must be between 1 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Is(t *testing.T) {
	err := NewValidationError("test")

	if !Is(err, &ValidationError{}) {
		t.Error("Is(ValidationError{}) = false, want true")
	}
	// ValidationError should match ErrInvalidInput
	if !Is(err, ErrInvalidInput) {
		t.Error("Is(ErrInvalidInput) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// InvalidCodebaseError Tests
// -----------------------------------------------------------------------------

func TestNewInvalidCodebaseError(t *testing.T) {
	err := NewInvalidCodebaseError("/no/such/dir")

	if err.Argument != "/no/such/dir" {
		t.Errorf("Argument = %q, want %q", err.Argument, "/no/such/dir")
	}
	want := "codebase '/no/such/dir' is neither an existing directory nor a git URL"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestInvalidCodebaseError_Is(t *testing.T) {
	err := NewInvalidCodebaseError("ftp://weird")

	if !Is(err, &InvalidCodebaseError{}) {
		t.Error("Is(InvalidCodebaseError{}) = false, want true")
	}
	// Classification failures are a flavor of invalid input
	if !Is(err, ErrInvalidInput) {
		t.Error("Is(ErrInvalidInput) = false, want true")
	}
	if Is(err, &ValidationError{}) {
		t.Error("Is(ValidationError{}) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// PortConflictError Tests
// -----------------------------------------------------------------------------

func TestNewPortConflictError(t *testing.T) {
	err := NewPortConflictError(8080, "otherproj")

	if err.Port != 8080 {
		t.Errorf("Port = %d, want 8080", err.Port)
	}
	if err.Owner != "otherproj" {
		t.Errorf("Owner = %q, want %q", err.Owner, "otherproj")
	}
	want := "port 8080 is already used by running instance 'otherproj'"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestPortConflictError_Is(t *testing.T) {
	err := NewPortConflictError(9000, "x")

	if !Is(err, &PortConflictError{}) {
		t.Error("Is(PortConflictError{}) = false, want true")
	}
	if Is(err, &NotFoundError{}) {
		t.Error("Is(NotFoundError{}) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// TimeoutError Tests
// -----------------------------------------------------------------------------

func TestNewTimeoutError(t *testing.T) {
	err := NewTimeoutError("waiting for VM launch", 10*time.Minute)

	if err.Operation != "waiting for VM launch" {
		t.Errorf("Operation = %q, want %q", err.Operation, "waiting for VM launch")
	}
	if err.Duration != 10*time.Minute {
		t.Errorf("Duration = %v, want %v", err.Duration, 10*time.Minute)
	}
	// Timeouts are retryable by default
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
}

func TestTimeoutError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *TimeoutError
		want string
	}{
		{
			name: "basic error",
			err:  NewTimeoutError("waiting for response", 5*time.Second),
			want: "timeout error: waiting for response (timeout: 5s)",
		},
		{
			name: "with cause",
			err:  NewTimeoutError("exec", time.Minute).WithCause(fmt.Errorf("context deadline exceeded")),
			want: "timeout error: exec (timeout: 1m0s): context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeoutError_Is(t *testing.T) {
	err := NewTimeoutError("test", time.Second)

	if !Is(err, &TimeoutError{}) {
		t.Error("Is(TimeoutError{}) = false, want true")
	}
	// TimeoutError should match ErrTimeout
	if !Is(err, ErrTimeout) {
		t.Error("Is(ErrTimeout) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Classification Helper Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "timeout error",
			err:  NewTimeoutError("test", time.Second),
			want: true,
		},
		{
			name: "backend error not retryable",
			err:  NewBackendError("test", nil),
			want: false,
		},
		{
			name: "backend error set retryable",
			err:  NewBackendError("test", nil).WithRetryable(true),
			want: true,
		},
		{
			name: "wrapped timeout sentinel",
			err:  fmt.Errorf("operation failed: %w", ErrTimeout),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "backend error",
			err:  NewBackendError("test", nil),
			want: true,
		},
		{
			name: "not found error",
			err:  NewNotFoundError("instance", "abc"),
			want: true,
		},
		{
			name: "validation error",
			err:  NewValidationError("invalid input"),
			want: true,
		},
		{
			name: "port conflict error",
			err:  NewPortConflictError(8080, "x"),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("internal error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{
			name: "nil error",
			err:  nil,
			want: SeverityDebug,
		},
		{
			name: "backend error default",
			err:  NewBackendError("test", nil),
			want: SeverityError,
		},
		{
			name: "backend error critical",
			err:  NewBackendError("test", nil).WithSeverity(SeverityCritical),
			want: SeverityCritical,
		},
		{
			name: "not found error",
			err:  NewNotFoundError("instance", "abc"),
			want: SeverityWarning,
		},
		{
			name: "standard error",
			err:  errors.New("standard"),
			want: SeverityError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "backend error",
			err:  NewBackendError("test", nil),
			want: true,
		},
		{
			name: "provision error",
			err:  NewProvisionError("test", nil),
			want: true,
		},
		{
			name: "not found error (semantic)",
			err:  NewNotFoundError("instance", "abc"),
			want: false,
		},
		{
			name: "standard error",
			err:  errors.New("test"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDomainError(tt.err); got != tt.want {
				t.Errorf("IsDomainError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSemanticError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "not found error",
			err:  NewNotFoundError("instance", "abc"),
			want: true,
		},
		{
			name: "validation error",
			err:  NewValidationError("invalid"),
			want: true,
		},
		{
			name: "invalid codebase error",
			err:  NewInvalidCodebaseError("nope"),
			want: true,
		},
		{
			name: "port conflict error",
			err:  NewPortConflictError(80, "x"),
			want: true,
		},
		{
			name: "timeout error",
			err:  NewTimeoutError("waiting", time.Second),
			want: true,
		},
		{
			name: "backend error (domain)",
			err:  NewBackendError("test", nil),
			want: false,
		},
		{
			name: "standard error",
			err:  errors.New("test"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSemanticError(tt.err); got != tt.want {
				t.Errorf("IsSemanticError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Wrap/Wrapf Tests
// -----------------------------------------------------------------------------

func TestWrap(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		want    string
	}{
		{
			name:    "nil error",
			err:     nil,
			message: "context",
			want:    "",
		},
		{
			name:    "wrap standard error",
			err:     errors.New("base error"),
			message: "failed to process",
			want:    "failed to process: base error",
		},
		{
			name:    "wrap backend error",
			err:     NewBackendError("launch failed", nil),
			message: "provisioning failed",
			want:    "provisioning failed: backend error: launch failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.err, tt.message)
			if tt.err == nil {
				if got != nil {
					t.Errorf("Wrap(nil) = %v, want nil", got)
				}
				return
			}
			if got.Error() != tt.want {
				t.Errorf("Wrap().Error() = %q, want %q", got.Error(), tt.want)
			}
		})
	}
}

func TestWrapf(t *testing.T) {
	baseErr := errors.New("base error")
	err := Wrapf(baseErr, "failed to provision %s", "myproj")

	want := "failed to provision myproj: base error"
	if err.Error() != want {
		t.Errorf("Wrapf().Error() = %q, want %q", err.Error(), want)
	}

	// Wrapf with nil should return nil
	if got := Wrapf(nil, "test"); got != nil {
		t.Errorf("Wrapf(nil) = %v, want nil", got)
	}
}

// -----------------------------------------------------------------------------
// Error Chain Tests
// -----------------------------------------------------------------------------

func TestErrorChain(t *testing.T) {
	// Create a chain of errors
	baseErr := ErrVMNotFound
	backendErr := NewBackendError("info failed", baseErr).WithVM("grokbox-abc")
	wrappedErr := Wrap(backendErr, "status query failed")

	// Should be able to find all errors in the chain
	if !Is(wrappedErr, ErrVMNotFound) {
		t.Error("Should find ErrVMNotFound in chain")
	}

	var extracted *BackendError
	if !As(wrappedErr, &extracted) {
		t.Error("Should extract BackendError from chain")
	}
	if extracted.VM != "grokbox-abc" {
		t.Errorf("VM = %q, want %q", extracted.VM, "grokbox-abc")
	}
}

// -----------------------------------------------------------------------------
// Sentinel Error Tests
// -----------------------------------------------------------------------------

func TestSentinelErrors(t *testing.T) {
	// Verify all sentinel errors are distinct
	sentinels := []error{
		ErrRecordCorrupted,
		ErrRecordLocked,
		ErrVMNotFound,
		ErrTransferFailed,
		ErrReadinessTimeout,
		ErrTimeout,
		ErrInvalidInput,
	}

	// Check that each sentinel is distinct from all others
	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && Is(err1, err2) {
				t.Errorf("Sentinel error %v should not match %v", err1, err2)
			}
		}
	}
}
