package fs

import (
	"context"
	"fmt"
)

// Descriptor is an opaque handle identifying a file opened by a Driver.
type Descriptor int

const (
	// InvalidDescriptor is the failure sentinel a Driver may return from OpenFile.
	InvalidDescriptor Descriptor = -1

	// FailureSentinel is the byte count a Driver may report for a failed read.
	FailureSentinel = -1
)

// ReadCompletion receives the outcome of an asynchronous driver read.
type ReadCompletion func(n int, err error)

// WriteCompletion receives the outcome of an asynchronous driver write.
type WriteCompletion func(err error)

// Driver performs path resolution and the actual I/O. Read and write operations
// take the caller owned storage together with the inclusive window bounds
// [start, end] they may touch; end == start-1 denotes an empty window.
//
// A Driver reports failure either through the returned error or through the
// sentinels (InvalidDescriptor, FailureSentinel). Asynchronous operations must
// invoke their completion exactly once, from whatever execution context the
// driver chooses.
type Driver interface {
	// OpenFile opens path and returns its descriptor.
	OpenFile(ctx context.Context, path string) (Descriptor, error)

	// CloseFile releases fd.
	CloseFile(ctx context.Context, fd Descriptor) error

	// SyncReadFile fills storage[start:end+1] from fd and returns the number of
	// bytes read. Zero means nothing was available.
	SyncReadFile(ctx context.Context, fd Descriptor, storage []byte, start, end int) (int, error)

	// SyncWriteFile writes storage[start:end+1] to fd.
	SyncWriteFile(ctx context.Context, fd Descriptor, storage []byte, start, end int) error

	// AsyncReadFile is the asynchronous form of SyncReadFile.
	AsyncReadFile(fd Descriptor, storage []byte, start, end int, done ReadCompletion)

	// AsyncWriteFile is the asynchronous form of SyncWriteFile.
	AsyncWriteFile(fd Descriptor, storage []byte, start, end int, done WriteCompletion)
}

// Window validates the inclusive bounds [start, end] against storage and
// returns the corresponding slice. Drivers use it to turn the byte range
// capability into something they can hand to their I/O primitives.
func Window(storage []byte, start, end int) ([]byte, error) {
	if start < 0 || end < start-1 || end >= len(storage) {
		return nil, fmt.Errorf("%w: [%d, %d] over %d bytes", ErrWindowOutOfRange, start, end, len(storage))
	}
	return storage[start : end+1], nil
}
