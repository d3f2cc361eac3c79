// Package errors provides coded domain errors for semodwatch.
//
// Usage:
//
//	// Return typed errors from components
//	if _, err := os.Stat(root); os.IsNotExist(err) {
//	    return errors.DirectoryNotFoundf("%s not found", root)
//	}
//
//	// Check with errors.Is against the sentinels
//	if errors.Is(err, errors.ErrPolicyDiscovery) {
//	    log.Warn("cannot locate policy recipe", "error", err)
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeNotFound:
//	        ...
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeWatchRegistration Code = "WATCH_REGISTRATION"
	CodePolicyDiscovery   Code = "POLICY_DISCOVERY"
	CodeValidation        Code = "VALIDATION"
	CodeSync              Code = "SYNC"
	CodeInternal          Code = "INTERNAL"
)

// ExitCode returns the process exit status used when an error of this code
// aborts startup. All fatal errors share status 1.
func (c Code) ExitCode() int {
	return 1
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code
	Message string
	Details any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrWatchRegistration = &Error{Code: CodeWatchRegistration, Message: "watch registration failed"}
	ErrPolicyDiscovery   = &Error{Code: CodePolicyDiscovery, Message: "policy discovery failed"}
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation error"}
	ErrSync              = &Error{Code: CodeSync, Message: "working copy sync failed"}
	ErrInternal          = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// DirectoryNotFound creates a not found error for a missing directory.
func DirectoryNotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// DirectoryNotFoundf creates a not found error with formatted message.
func DirectoryNotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// WatchRegistration creates a watch registration error wrapping the OS failure.
func WatchRegistration(err error, msg string) *Error {
	return &Error{Code: CodeWatchRegistration, Message: msg, cause: err}
}

// PolicyDiscovery creates a policy discovery error.
func PolicyDiscovery(msg string) *Error {
	return &Error{Code: CodePolicyDiscovery, Message: msg}
}

// PolicyDiscoveryf creates a policy discovery error with formatted message.
func PolicyDiscoveryf(format string, args ...any) *Error {
	return &Error{Code: CodePolicyDiscovery, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Syncf creates a working copy sync error with formatted message.
func Syncf(format string, args ...any) *Error {
	return &Error{Code: CodeSync, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// ExitCode returns the exit status for err: the code's status for domain
// errors, 1 for anything else, 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code.ExitCode()
	}
	return 1
}
