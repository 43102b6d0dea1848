package ps2mc

import (
	"fmt"
	"syscall"
)

// DriverError is a wrapper around a system errno code, with a customizable
// error message. It is used for I/O-level failures (bad paths, permission
// mismatches, out-of-space) that map naturally onto POSIX error codes; the
// ps2mc/errors package covers filesystem-logic failures that don't.
type DriverError struct {
	ErrnoCode syscall.Errno
	message   string
}

// Error implements the error interface.
func (e DriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.ErrnoCode.Error()
}

// Unwrap lets errors.Is(err, syscall.ENOENT) and friends work against a
// DriverError.
func (e DriverError) Unwrap() error {
	return e.ErrnoCode
}

// NewDriverError creates a new DriverError with a default message derived
// from the system's error code.
func NewDriverError(errnoCode syscall.Errno) *DriverError {
	return &DriverError{ErrnoCode: errnoCode, message: errnoCode.Error()}
}

// NewDriverErrorWithMessage creates a new DriverError from a system error
// code with a custom message.
func NewDriverErrorWithMessage(errnoCode syscall.Errno, message string) *DriverError {
	return &DriverError{
		ErrnoCode: errnoCode,
		message:   fmt.Sprintf("%s: %s", errnoCode.Error(), message),
	}
}
