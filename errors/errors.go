// Package errors defines the error categories the tool reports. Every
// category wraps an underlying cause so callers can decide between aborting
// before resources are acquired (validation), aborting with cleanup (bind,
// mount, resize constraints) and carrying on (cleanup, work results).
package errors

import (
	"errors"
	"fmt"
)

// ValidationError covers bad paths, unsupported partition layouts or types,
// and missing privileges. It is always raised before any resource is acquired.
type ValidationError struct {
	Cause error
}

func NewValidationError(msg string) ValidationError {
	return ValidationError{Cause: errors.New(msg)}
}

func NewValidationErrorf(msg string, args ...interface{}) ValidationError {
	return ValidationError{Cause: fmt.Errorf(msg, args...)}
}

func WrapValidationError(cause error, msg string) ValidationError {
	return ValidationError{Cause: wrap(cause, msg)}
}

func (e ValidationError) Error() string { return "validation failed: " + e.Cause.Error() }
func (e ValidationError) Unwrap() error { return e.Cause }

// BindError is a loop attach failure; nothing has been mutated yet.
type BindError struct {
	Cause error
}

func WrapBindError(cause error, msg string) BindError {
	return BindError{Cause: wrap(cause, msg)}
}

func (e BindError) Error() string { return "binding image: " + e.Cause.Error() }
func (e BindError) Unwrap() error { return e.Cause }

// MountError is a mount call failure; the caller must still release its
// loop binding.
type MountError struct {
	Cause error
}

func WrapMountError(cause error, msg string) MountError {
	return MountError{Cause: wrap(cause, msg)}
}

func (e MountError) Error() string { return "mounting partition: " + e.Cause.Error() }
func (e MountError) Unwrap() error { return e.Cause }

// ResizeConstraintError rejects a resize target that is below the filesystem
// minimum, above the device capacity, or unreachable by the shrink bound. It
// is raised before any destructive step.
type ResizeConstraintError struct {
	Cause error
}

func NewResizeConstraintErrorf(msg string, args ...interface{}) ResizeConstraintError {
	return ResizeConstraintError{Cause: fmt.Errorf(msg, args...)}
}

func (e ResizeConstraintError) Error() string { return "resize constraint: " + e.Cause.Error() }
func (e ResizeConstraintError) Unwrap() error { return e.Cause }

// CleanupError reports exhausted unmount retries or a failed detach. It is
// logged and never overrides the caller's result code.
type CleanupError struct {
	Cause error
}

func WrapCleanupError(cause error, msg string) CleanupError {
	return CleanupError{Cause: wrap(cause, msg)}
}

func (e CleanupError) Error() string { return "cleanup: " + e.Cause.Error() }
func (e CleanupError) Unwrap() error { return e.Cause }

// WorkError carries the non-zero exit code of caller-supplied work or a
// chrooted script. It propagates as the overall exit code and is not a tool
// failure.
type WorkError struct {
	ExitCode int
	Cause    error
}

func NewWorkError(exitCode int, msg string) WorkError {
	return WorkError{ExitCode: exitCode, Cause: errors.New(msg)}
}

func (e WorkError) Error() string {
	return fmt.Sprintf("work exited %d: %s", e.ExitCode, e.Cause.Error())
}

func (e WorkError) Unwrap() error { return e.Cause }

func IsValidation(err error) bool {
	var e ValidationError
	return errors.As(err, &e)
}

func IsResizeConstraint(err error) bool {
	var e ResizeConstraintError
	return errors.As(err, &e)
}

func IsCleanup(err error) bool {
	var e CleanupError
	return errors.As(err, &e)
}

// ExitCode extracts the work exit code from an error chain, or -1.
func ExitCode(err error) int {
	var e WorkError
	if errors.As(err, &e) {
		return e.ExitCode
	}
	return -1
}

func wrap(cause error, msg string) error {
	if cause == nil {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: %w", msg, cause)
}
