// Package local implements fs.Driver on top of the operating system's file
// descriptors.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/tostrovsky/tp-so-alternativo/pkg/dispatch"
	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
)

// Config contains the local driver configuration
type Config struct {
	// Root is the directory every path is resolved against
	Root string

	// Flags are the open(2) flags used by OpenFile
	Flags int

	// Perm is the mode of files created when Flags contains O_CREAT
	Perm uint32

	// Dispatch configures the goroutines running asynchronous operations
	Dispatch dispatch.Config

	Logger *slog.Logger
}

// DefaultConfig returns a configuration that opens existing files for reading
// and writing under root.
func DefaultConfig(root string) Config {
	return Config{
		Root:     root,
		Flags:    unix.O_RDWR,
		Perm:     0644,
		Dispatch: dispatch.DefaultConfig(),
	}
}

// LocalDriver implements fs.Driver using raw descriptors of the local
// operating system.
type LocalDriver struct {
	// rootPath is the base directory in the local filesystem
	rootPath string

	flags int
	perm  uint32

	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

var _ fs.Driver = (*LocalDriver)(nil)

// NewLocalDriver creates a new local driver. The root must be an existing
// directory.
func NewLocalDriver(config Config) (*LocalDriver, error) {
	// Ensure rootPath exists and is a directory
	fi, err := os.Stat(config.Root)
	if err != nil {
		return nil, fs.NewError("init", config.Root, fs.ErrNotExist, err)
	}

	if !fi.IsDir() {
		return nil, fs.NewError("init", config.Root, fs.ErrInvalidName, errors.New("not a directory"))
	}

	absPath, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fs.NewError("init", config.Root, fs.ErrInvalidName, err)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Dispatch.Logger == nil {
		config.Dispatch.Logger = config.Logger
	}

	return &LocalDriver{
		rootPath:   absPath,
		flags:      config.Flags,
		perm:       config.Perm,
		dispatcher: dispatch.New(config.Dispatch),
		logger:     config.Logger.With("driver", "local"),
	}, nil
}

// Root returns the absolute root directory.
func (l *LocalDriver) Root() string {
	return l.rootPath
}

// resolvePath converts a path relative to the driver root to an absolute OS
// path, rejecting paths that would escape the root
func (l *LocalDriver) resolvePath(path string) (string, error) {
	path = strings.TrimPrefix(path, "/")

	fullPath := filepath.Join(l.rootPath, filepath.Clean(path))

	if fullPath != l.rootPath && !strings.HasPrefix(fullPath, l.rootPath+string(filepath.Separator)) {
		return "", fs.ErrInvalidName
	}

	return fullPath, nil
}

// OpenFile opens path below the root.
func (l *LocalDriver) OpenFile(ctx context.Context, path string) (fs.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return fs.InvalidDescriptor, err
	}

	fullPath, err := l.resolvePath(path)
	if err != nil {
		return fs.InvalidDescriptor, fs.NewError("open", path, err, nil)
	}

	for {
		fd, err := unix.Open(fullPath, l.flags|unix.O_CLOEXEC, l.perm)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fs.InvalidDescriptor, fs.NewError("open", path, mapErrno(err), err)
		}
		l.logger.Debug("opened", "path", path, "fd", fd)
		return fs.Descriptor(fd), nil
	}
}

// CloseFile closes fd.
func (l *LocalDriver) CloseFile(_ context.Context, fd fs.Descriptor) error {
	if err := unix.Close(int(fd)); err != nil {
		return fs.NewError("close", "", mapErrno(err), err)
	}
	return nil
}

// SyncReadFile performs a single read(2) into the window.
func (l *LocalDriver) SyncReadFile(ctx context.Context, fd fs.Descriptor, storage []byte, start, end int) (int, error) {
	p, err := fs.Window(storage, start, end)
	if err != nil {
		return fs.FailureSentinel, err
	}
	if err := ctx.Err(); err != nil {
		return fs.FailureSentinel, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, err := unix.Read(int(fd), p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fs.FailureSentinel, fs.NewError("read", "", mapErrno(err), err)
		}
		return n, nil
	}
}

// SyncWriteFile writes the whole window, looping over short writes.
func (l *LocalDriver) SyncWriteFile(ctx context.Context, fd fs.Descriptor, storage []byte, start, end int) error {
	p, err := fs.Window(storage, start, end)
	if err != nil {
		return err
	}

	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Write(int(fd), p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fs.NewError("write", "", mapErrno(err), err)
		}
		if n == 0 {
			return fs.NewError("write", "", fs.ErrIO, io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// AsyncReadFile runs SyncReadFile on the dispatcher.
func (l *LocalDriver) AsyncReadFile(fd fs.Descriptor, storage []byte, start, end int, done fs.ReadCompletion) {
	err := l.dispatcher.Go(func() {
		done(l.SyncReadFile(context.Background(), fd, storage, start, end))
	})
	if err != nil {
		done(fs.FailureSentinel, fmt.Errorf("local: async read: %w", err))
	}
}

// AsyncWriteFile runs SyncWriteFile on the dispatcher.
func (l *LocalDriver) AsyncWriteFile(fd fs.Descriptor, storage []byte, start, end int, done fs.WriteCompletion) {
	err := l.dispatcher.Go(func() {
		done(l.SyncWriteFile(context.Background(), fd, storage, start, end))
	})
	if err != nil {
		done(fmt.Errorf("local: async write: %w", err))
	}
}

// Close waits for pending asynchronous operations. Descriptors still open are
// left to their owners.
func (l *LocalDriver) Close() error {
	l.dispatcher.Close()
	return nil
}

// mapErrno maps errno values to fs errors
func mapErrno(err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENOTDIR):
		return fs.ErrNotExist
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, unix.EROFS):
		return fs.ErrPermission
	case errors.Is(err, unix.EISDIR):
		return fs.ErrIsDir
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENAMETOOLONG):
		return fs.ErrInvalidName
	case errors.Is(err, unix.EBADF):
		return fs.ErrBadDescriptor
	}

	// Default to IO error
	return fs.ErrIO
}
