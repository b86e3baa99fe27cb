// Package fs turns the raw primitives of a file descriptor Driver into
// OpenedFile values that read and write through reusable, windowed Buffers.
package fs

import (
	"context"
	"log/slog"
)

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithLogger sets the logger handed to every OpenedFile.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FileSystem) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// FileSystem opens paths through a Driver. It holds no state besides the
// driver reference and can be shared for any number of opens.
type FileSystem struct {
	driver Driver
	logger *slog.Logger
}

// New creates a FileSystem over driver. The driver is owned by the caller and
// must outlive every OpenedFile produced.
func New(driver Driver, opts ...Option) *FileSystem {
	f := &FileSystem{
		driver: driver,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Driver returns the driver the file system was created with.
func (f *FileSystem) Driver() Driver {
	return f.driver
}

// Open opens path and returns an OpenedFile bound to the driver descriptor.
// Any driver failure is reported as ErrOpen.
func (f *FileSystem) Open(ctx context.Context, path string) (*OpenedFile, error) {
	fd, err := f.driver.OpenFile(ctx, path)
	if err != nil {
		return nil, NewError("open", path, ErrOpen, err)
	}
	if fd == InvalidDescriptor {
		return nil, NewError("open", path, ErrOpen, nil)
	}
	f.logger.Debug("file opened", "path", path, "fd", int(fd))
	return newOpenedFile(fd, path, f.driver, f.logger), nil
}
