package fs

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by FileSystem and OpenedFile.
var (
	ErrOpen   = errors.New("can not open file")
	ErrRead   = errors.New("can not read file")
	ErrWrite  = errors.New("can not write file")
	ErrClose  = errors.New("can not close file")
	ErrClosed = errors.New("file already closed")

	// ErrWindowOutOfRange is returned by Buffer.Limit when n is outside [0, capacity].
	ErrWindowOutOfRange = errors.New("window out of range")
)

// Driver level errors. Drivers wrap their native failures with these so that the
// transport and callers can classify them.
var (
	ErrNotExist      = errors.New("file does not exist")
	ErrPermission    = errors.New("permission denied")
	ErrIsDir         = errors.New("is a directory")
	ErrInvalidName   = errors.New("invalid name")
	ErrBadDescriptor = errors.New("bad file descriptor")
	ErrInvalidHandle = errors.New("invalid file handle")
	ErrStale         = errors.New("stale file handle")
	ErrIO            = errors.New("input/output error")
	ErrDriverClosed  = errors.New("driver closed")
	ErrBusy          = errors.New("driver busy")
)

// FSError represents a file system error with additional context.
// Kind is one of the failure kinds (ErrOpen, ErrRead, ...) and Err the
// underlying cause, if any.
type FSError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

// Error implements the error interface.
func (e *FSError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *FSError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError creates a new FSError.
func NewError(op, path string, kind, err error) error {
	return &FSError{
		Op:   op,
		Path: path,
		Kind: kind,
		Err:  err,
	}
}
