// Package errors defines the error taxonomy the ps2mc core uses to report
// failures, generalizing github.com/dargueta/disko's errors package from
// POSIX errno wrapping to PS2MC's own filesystem-specific failure kinds.
package errors

import "fmt"

// Ps2mcError is a string-based error constant, following the same pattern as
// disko.DiskoError: a plain value that can be compared with == and wrapped
// with additional context via WithMessage/WrapError.
type Ps2mcError string

const ErrPathNotFound = Ps2mcError("intermediate directory not found")
const ErrFileNotFound = Ps2mcError("file not found")
const ErrDirectoryNotFound = Ps2mcError("directory not found")
const ErrDirIndexOutOfRange = Ps2mcError("directory index out of range")
const ErrNotADirectory = Ps2mcError("not a directory")
const ErrIsADirectory = Ps2mcError("is a directory")
const ErrAlreadyExists = Ps2mcError("already exists")
const ErrNotEmpty = Ps2mcError("directory not empty")
const ErrBusy = Ps2mcError("object is open elsewhere")
const ErrNoSpace = Ps2mcError("no space left on card")
const ErrReadOnly = Ps2mcError("file system or handle is read-only")
const ErrFileSystemCorrupted = Ps2mcError("file system structure is corrupt")
const ErrEccUncorrectable = Ps2mcError("uncorrectable ECC error")
const ErrIOFailed = Ps2mcError("input/output error")
const ErrInvalidArgument = Ps2mcError("invalid argument")
const ErrMalformedArchive = Ps2mcError("malformed save archive")
const ErrLzariCorrupt = Ps2mcError("corrupt LZARI stream")

func (e Ps2mcError) Error() string {
	return string(e)
}

// WithMessage returns a new error that carries e's identity (for Is/errors.Is
// style comparisons via Unwrap) but a more specific message.
func (e Ps2mcError) WithMessage(message string) DriverError {
	return customDriverError{message: message, originalError: e}
}

// WrapError returns a new error combining e's message with the text of err.
func (e Ps2mcError) WrapError(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: err,
	}
}
