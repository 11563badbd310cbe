package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrAborted      ErrorCode = "ABORTED"

	// Configuration errors
	ErrConfigLoad         ErrorCode = "CONFIG_LOAD"
	ErrConfigParse        ErrorCode = "CONFIG_PARSE"
	ErrConfigInvalid      ErrorCode = "CONFIG_INVALID"
	ErrWildcardInvalid    ErrorCode = "WILDCARD_INVALID"
	ErrPathInvalid        ErrorCode = "PATH_INVALID"
	ErrDeclaredTwice      ErrorCode = "DECLARED_MULTIPLE_TIMES"
	ErrTemplate           ErrorCode = "TEMPLATE"
	ErrPackageCmdMissing  ErrorCode = "PACKAGE_COMMAND_MISSING"
	ErrInvalidPermissions ErrorCode = "INVALID_PERMISSIONS"

	// Module errors
	ErrModuleNotFound    ErrorCode = "MODULE_NOT_FOUND"
	ErrModuleNotDeployed ErrorCode = "MODULE_NOT_DEPLOYED"
	ErrDependencyCycle   ErrorCode = "DEPENDENCY_CYCLE"

	// Store errors
	ErrStore ErrorCode = "STORE"

	// Execution errors
	ErrPermission ErrorCode = "PERMISSION"
	ErrElevation  ErrorCode = "ELEVATION"
	ErrTaskFailed ErrorCode = "TASK_FAILED"
	ErrPackageCmd ErrorCode = "PACKAGE_COMMAND"

	// FileSystem errors
	ErrFilesystem    ErrorCode = "FILESYSTEM"
	ErrFileNotFound  ErrorCode = "FILE_NOT_FOUND"
	ErrChecksumDrift ErrorCode = "CHECKSUM_MISMATCH"

	// Batch errors
	ErrAggregate ErrorCode = "AGGREGATE"
)

// DotdeployError represents a structured error with code and details
type DotdeployError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *DotdeployError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *DotdeployError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *DotdeployError) Is(target error) bool {
	var targetErr *DotdeployError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new DotdeployError with the given code and message
func New(code ErrorCode, message string) *DotdeployError {
	return &DotdeployError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new DotdeployError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *DotdeployError {
	return &DotdeployError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a DotdeployError.
// Callers must not pass a nil error where the result is returned as an
// error interface; the typed nil would compare non-nil.
func Wrap(err error, code ErrorCode, message string) *DotdeployError {
	if err == nil {
		return nil
	}
	return &DotdeployError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *DotdeployError {
	if err == nil {
		return nil
	}
	return &DotdeployError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *DotdeployError) WithDetail(key string, value interface{}) *DotdeployError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *DotdeployError) WithDetails(details map[string]interface{}) *DotdeployError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// IsErrorCode checks if an error has a specific error code.
// Aggregates are searched member by member.
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, &DotdeployError{Code: code})
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a DotdeployError
func GetErrorCode(err error) ErrorCode {
	var dErr *DotdeployError
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a DotdeployError
func GetErrorDetails(err error) map[string]interface{} {
	var dErr *DotdeployError
	if errors.As(err, &dErr) {
		return dErr.Details
	}
	return nil
}

// AggregateError folds the failures of a concurrent batch into one error.
// Every member stays reachable through errors.Is and errors.As.
type AggregateError struct {
	Errors []error
}

// Aggregate returns nil when errs holds no non-nil error.
func Aggregate(errs []error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &AggregateError{Errors: kept}
}

// Error implements the error interface
func (a *AggregateError) Error() string {
	var sb strings.Builder
	if len(a.Errors) == 1 {
		sb.WriteString("1 error occurred:")
	} else {
		fmt.Fprintf(&sb, "%d errors occurred:", len(a.Errors))
	}
	for _, err := range a.Errors {
		sb.WriteString("\n  * ")
		sb.WriteString(strings.ReplaceAll(err.Error(), "\n", "\n    "))
	}
	return sb.String()
}

// Unwrap exposes every member to errors.Is and errors.As
func (a *AggregateError) Unwrap() []error {
	return a.Errors
}

// Is reports whether target is the aggregate code
func (a *AggregateError) Is(target error) bool {
	var targetErr *DotdeployError
	if errors.As(target, &targetErr) {
		return targetErr.Code == ErrAggregate
	}
	return false
}
