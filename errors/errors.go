// Package errors defines the error kinds surfaced by the runtime.
//
// Every failure maps to one of a small set of sentinel kinds, so callers can
// branch with errors.Is while still getting a wrapped, context-carrying
// message (and stack trace, courtesy of github.com/pkg/errors).
package errors

import (
	"github.com/pkg/errors"
)

// Sentinel error kinds. Test with errors.Is.
var (
	// ErrConfigurationMismatch: an executor was given a memory space whose
	// location does not match the executor's backend kind. Raised at
	// construction, never later.
	ErrConfigurationMismatch = errors.New("configuration mismatch")

	// ErrUnsupportedOperation: an operation has no callable for the executor
	// kind it was dispatched to, and no fallback applies.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrDevice: an accelerator driver or runtime call failed.
	ErrDevice = errors.New("device error")

	// ErrCommunication: a transport failure in a collective or
	// point-to-point call.
	ErrCommunication = errors.New("communication error")

	// ErrDimensionMismatch: inconsistent buffer or count arguments, either
	// across ranks or between the source and destination of a copy.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrClosed: the executor was already destroyed; no further operations
	// may be enqueued.
	ErrClosed = errors.New("executor destroyed")
)

// ConfigurationMismatchf returns an ErrConfigurationMismatch annotated with
// the formatted message.
func ConfigurationMismatchf(format string, args ...any) error {
	return errors.Wrapf(ErrConfigurationMismatch, format, args...)
}

// UnsupportedOperationf returns an ErrUnsupportedOperation annotated with the
// formatted message.
func UnsupportedOperationf(format string, args ...any) error {
	return errors.Wrapf(ErrUnsupportedOperation, format, args...)
}

// DeviceErrorf returns an ErrDevice annotated with the formatted message.
func DeviceErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrDevice, format, args...)
}

// CommunicationErrorf returns an ErrCommunication annotated with the
// formatted message.
func CommunicationErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrCommunication, format, args...)
}

// DimensionMismatchf returns an ErrDimensionMismatch annotated with the
// formatted message.
func DimensionMismatchf(format string, args ...any) error {
	return errors.Wrapf(ErrDimensionMismatch, format, args...)
}

// Closedf returns an ErrClosed annotated with the formatted message.
func Closedf(format string, args ...any) error {
	return errors.Wrapf(ErrClosed, format, args...)
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers don't need a second errors import.
func Is(err, target error) bool { return errors.Is(err, target) }
