// Package rpc declares the gRPC contract between a driver server and its
// remote clients, and the mapping between fs errors and gRPC statuses.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
)

// ErrorDomain tags the ErrorInfo details attached to statuses.
const ErrorDomain = "fdfs"

type errorMapping struct {
	err    error
	code   codes.Code
	reason string
}

// Causes are listed before the generic kinds so the most specific one wins.
var errorMappings = []errorMapping{
	{fs.ErrNotExist, codes.NotFound, "NOT_EXIST"},
	{fs.ErrPermission, codes.PermissionDenied, "PERMISSION"},
	{fs.ErrIsDir, codes.FailedPrecondition, "IS_DIR"},
	{fs.ErrInvalidName, codes.InvalidArgument, "INVALID_NAME"},
	{fs.ErrBadDescriptor, codes.InvalidArgument, "BAD_DESCRIPTOR"},
	{fs.ErrInvalidHandle, codes.InvalidArgument, "INVALID_HANDLE"},
	{fs.ErrStale, codes.NotFound, "STALE"},
	{fs.ErrWindowOutOfRange, codes.OutOfRange, "WINDOW_OUT_OF_RANGE"},
	{fs.ErrClosed, codes.FailedPrecondition, "CLOSED"},
	{fs.ErrDriverClosed, codes.Unavailable, "DRIVER_CLOSED"},
	{fs.ErrBusy, codes.ResourceExhausted, "BUSY"},
	{fs.ErrIO, codes.Internal, "IO"},
}

// ErrorToStatus converts an error to a gRPC status error carrying an
// ErrorInfo detail that names the fs sentinel it matched.
func ErrorToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return status.FromContextError(err).Err()
	}

	mapping := errorMapping{fs.ErrIO, codes.Internal, "IO"}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			mapping = m
			break
		}
	}

	st := status.New(mapping.code, err.Error())
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: mapping.reason,
		Domain: ErrorDomain,
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// RemoteError represents a failure reported by the driver server
type RemoteError struct {
	// Operation that failed
	Op string

	// gRPC status code
	Code codes.Code

	// Error message sent by the server
	Message string

	// Underlying fs sentinel
	Err error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %s (%s)", e.Op, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// StatusToError converts a gRPC status error back into an error matching the
// fs sentinel chosen by ErrorToStatus. Errors that carry no status are
// returned unchanged.
func StatusToError(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	remote := &RemoteError{
		Op:      op,
		Code:    st.Code(),
		Message: st.Message(),
	}

	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		for _, m := range errorMappings {
			if m.reason == info.GetReason() {
				remote.Err = m.err
				return remote
			}
		}
	}

	switch st.Code() {
	case codes.NotFound:
		remote.Err = fs.ErrNotExist
	case codes.PermissionDenied:
		remote.Err = fs.ErrPermission
	case codes.OutOfRange:
		remote.Err = fs.ErrWindowOutOfRange
	case codes.DeadlineExceeded:
		remote.Err = context.DeadlineExceeded
	case codes.Canceled:
		remote.Err = context.Canceled
	default:
		remote.Err = fs.ErrIO
	}
	return remote
}
