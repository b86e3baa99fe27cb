// Package billyfs implements fs.Driver over any go-billy file system, which
// makes in-memory and chrooted drivers available without touching raw
// descriptors.
package billyfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"

	"github.com/tostrovsky/tp-so-alternativo/pkg/dispatch"
	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
)

// Config contains the billy driver configuration
type Config struct {
	// Flag is the os.OpenFile flag used by OpenFile
	Flag int

	// Perm is the mode of files created when Flag contains os.O_CREATE
	Perm os.FileMode

	// Dispatch configures the goroutines running asynchronous operations
	Dispatch dispatch.Config

	Logger *slog.Logger
}

// DefaultConfig returns a configuration that opens existing files for reading
// and writing.
func DefaultConfig() Config {
	return Config{
		Flag:     os.O_RDWR,
		Perm:     0644,
		Dispatch: dispatch.DefaultConfig(),
	}
}

type openFile struct {
	mu   sync.Mutex
	path string
	file billy.File
}

// Driver implements fs.Driver on a billy.Filesystem. Descriptors are local to
// the driver and never reused.
type Driver struct {
	fs   billy.Filesystem
	flag int
	perm os.FileMode

	mu    sync.Mutex
	files map[fs.Descriptor]*openFile
	next  fs.Descriptor

	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

var _ fs.Driver = (*Driver)(nil)

// New creates a driver over bfs.
func New(bfs billy.Filesystem, config Config) *Driver {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Dispatch.Logger == nil {
		config.Dispatch.Logger = config.Logger
	}

	return &Driver{
		fs:         bfs,
		flag:       config.Flag,
		perm:       config.Perm,
		files:      make(map[fs.Descriptor]*openFile),
		dispatcher: dispatch.New(config.Dispatch),
		logger:     config.Logger.With("driver", "billy"),
	}
}

// NewMemory creates a driver over a fresh in-memory file system.
func NewMemory(config Config) *Driver {
	return New(memfs.New(), config)
}

// Filesystem returns the underlying billy file system.
func (d *Driver) Filesystem() billy.Filesystem {
	return d.fs
}

// OpenFile opens path on the billy file system.
func (d *Driver) OpenFile(ctx context.Context, path string) (fs.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return fs.InvalidDescriptor, err
	}

	info, err := d.fs.Stat(path)
	if err == nil && info.IsDir() {
		return fs.InvalidDescriptor, fs.NewError("open", path, fs.ErrIsDir, nil)
	}

	f, err := d.fs.OpenFile(path, d.flag, d.perm)
	if err != nil {
		return fs.InvalidDescriptor, fs.NewError("open", path, mapError(err), err)
	}

	d.mu.Lock()
	fd := d.next
	d.next++
	d.files[fd] = &openFile{path: path, file: f}
	d.mu.Unlock()

	d.logger.Debug("opened", "path", path, "fd", int(fd))
	return fd, nil
}

// CloseFile closes fd and forgets it.
func (d *Driver) CloseFile(_ context.Context, fd fs.Descriptor) error {
	d.mu.Lock()
	of, ok := d.files[fd]
	delete(d.files, fd)
	d.mu.Unlock()

	if !ok {
		return fs.NewError("close", "", fs.ErrBadDescriptor, nil)
	}

	of.mu.Lock()
	defer of.mu.Unlock()

	if err := of.file.Close(); err != nil {
		return fs.NewError("close", of.path, fs.ErrIO, err)
	}
	return nil
}

// SyncReadFile performs a single read into the window. End of file is
// reported as zero bytes.
func (d *Driver) SyncReadFile(ctx context.Context, fd fs.Descriptor, storage []byte, start, end int) (int, error) {
	p, err := fs.Window(storage, start, end)
	if err != nil {
		return fs.FailureSentinel, err
	}
	if err := ctx.Err(); err != nil {
		return fs.FailureSentinel, err
	}

	of, err := d.lookup(fd)
	if err != nil {
		return fs.FailureSentinel, fs.NewError("read", "", err, nil)
	}
	if len(p) == 0 {
		return 0, nil
	}

	of.mu.Lock()
	defer of.mu.Unlock()

	n, err := of.file.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return fs.FailureSentinel, fs.NewError("read", of.path, mapError(err), err)
	}
	return n, nil
}

// SyncWriteFile writes the whole window.
func (d *Driver) SyncWriteFile(ctx context.Context, fd fs.Descriptor, storage []byte, start, end int) error {
	p, err := fs.Window(storage, start, end)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	of, err := d.lookup(fd)
	if err != nil {
		return fs.NewError("write", "", err, nil)
	}
	if len(p) == 0 {
		return nil
	}

	of.mu.Lock()
	defer of.mu.Unlock()

	n, err := of.file.Write(p)
	if err != nil {
		return fs.NewError("write", of.path, mapError(err), err)
	}
	if n != len(p) {
		return fs.NewError("write", of.path, fs.ErrIO, io.ErrShortWrite)
	}
	return nil
}

// AsyncReadFile runs SyncReadFile on the dispatcher.
func (d *Driver) AsyncReadFile(fd fs.Descriptor, storage []byte, start, end int, done fs.ReadCompletion) {
	err := d.dispatcher.Go(func() {
		done(d.SyncReadFile(context.Background(), fd, storage, start, end))
	})
	if err != nil {
		done(fs.FailureSentinel, fmt.Errorf("billy: async read: %w", err))
	}
}

// AsyncWriteFile runs SyncWriteFile on the dispatcher.
func (d *Driver) AsyncWriteFile(fd fs.Descriptor, storage []byte, start, end int, done fs.WriteCompletion) {
	err := d.dispatcher.Go(func() {
		done(d.SyncWriteFile(context.Background(), fd, storage, start, end))
	})
	if err != nil {
		done(fmt.Errorf("billy: async write: %w", err))
	}
}

// Close waits for pending asynchronous operations and closes every file still
// open.
func (d *Driver) Close() error {
	d.dispatcher.Close()

	d.mu.Lock()
	files := d.files
	d.files = make(map[fs.Descriptor]*openFile)
	d.mu.Unlock()

	var errs []error
	for fd, of := range files {
		d.logger.Warn("closing leaked descriptor", "path", of.path, "fd", int(fd))
		if err := of.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("billy: close %q: %w", of.path, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) lookup(fd fs.Descriptor) (*openFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	of, ok := d.files[fd]
	if !ok {
		return nil, fs.ErrBadDescriptor
	}
	return of, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs.ErrNotExist
	case errors.Is(err, os.ErrPermission):
		return fs.ErrPermission
	}
	return fs.ErrIO
}
