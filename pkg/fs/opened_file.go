package fs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// OpenedFile couples a descriptor with the driver that issued it. It is
// created by FileSystem.Open and stays usable until Close; every operation
// after that fails with ErrClosed.
//
// An OpenedFile does not own its driver. Like Buffer, it is meant for a single
// owner: the window of a buffer handed to an operation must not be touched
// until that operation completes.
type OpenedFile struct {
	descriptor Descriptor
	path       string
	driver     Driver
	logger     *slog.Logger
	closed     atomic.Bool
}

func newOpenedFile(fd Descriptor, path string, driver Driver, logger *slog.Logger) *OpenedFile {
	return &OpenedFile{
		descriptor: fd,
		path:       path,
		driver:     driver,
		logger:     logger,
	}
}

// Descriptor returns the driver descriptor backing the file.
func (f *OpenedFile) Descriptor() Descriptor {
	return f.descriptor
}

// Path returns the path the file was opened with.
func (f *OpenedFile) Path() string {
	return f.path
}

// Closed reports whether Close has been called.
func (f *OpenedFile) Closed() bool {
	return f.closed.Load()
}

// Close releases the descriptor. Only the first call reaches the driver.
func (f *OpenedFile) Close(ctx context.Context) error {
	if !f.closed.CompareAndSwap(false, true) {
		return NewError("close", f.path, ErrClosed, nil)
	}
	if err := f.driver.CloseFile(ctx, f.descriptor); err != nil {
		return NewError("close", f.path, ErrClose, err)
	}
	return nil
}

// Read fills the current window of buf from the file and narrows the window to
// the bytes actually read. Bytes past the new end keep their previous content.
// On failure buf is left unmodified.
func (f *OpenedFile) Read(ctx context.Context, buf *Buffer) error {
	if f.closed.Load() {
		return NewError("read", f.path, ErrClosed, nil)
	}
	n, err := f.driver.SyncReadFile(ctx, f.descriptor, buf.Bytes(), buf.Start(), buf.End())
	return f.completeRead(buf, n, err)
}

// Write sends exactly the current window of buf to the file. buf itself is not
// modified.
func (f *OpenedFile) Write(ctx context.Context, buf *Buffer) error {
	if f.closed.Load() {
		return NewError("write", f.path, ErrClosed, nil)
	}
	if err := f.driver.SyncWriteFile(ctx, f.descriptor, buf.Bytes(), buf.Start(), buf.End()); err != nil {
		return NewError("write", f.path, ErrWrite, err)
	}
	return nil
}

// AsyncRead starts a read into the current window of buf. done is invoked
// exactly once: with buf narrowed to the bytes read, or with an error and buf
// untouched. On a closed file done runs immediately on the calling goroutine.
func (f *OpenedFile) AsyncRead(buf *Buffer, done func(*Buffer, error)) {
	if f.closed.Load() {
		done(buf, NewError("read", f.path, ErrClosed, nil))
		return
	}
	var once sync.Once
	f.driver.AsyncReadFile(f.descriptor, buf.Bytes(), buf.Start(), buf.End(), func(n int, err error) {
		fired := false
		once.Do(func() {
			fired = true
			done(buf, f.completeRead(buf, n, err))
		})
		if !fired {
			f.logger.Warn("dropping duplicate read completion", "path", f.path, "fd", int(f.descriptor))
		}
	})
}

// AsyncWrite starts a write of the current window of buf. done is invoked
// exactly once, after the driver signals completion.
func (f *OpenedFile) AsyncWrite(buf *Buffer, done func(error)) {
	if f.closed.Load() {
		done(NewError("write", f.path, ErrClosed, nil))
		return
	}
	var once sync.Once
	f.driver.AsyncWriteFile(f.descriptor, buf.Bytes(), buf.Start(), buf.End(), func(err error) {
		fired := false
		once.Do(func() {
			fired = true
			if err != nil {
				err = NewError("write", f.path, ErrWrite, err)
			}
			done(err)
		})
		if !fired {
			f.logger.Warn("dropping duplicate write completion", "path", f.path, "fd", int(f.descriptor))
		}
	})
}

func (f *OpenedFile) completeRead(buf *Buffer, n int, err error) error {
	if err != nil {
		return NewError("read", f.path, ErrRead, err)
	}
	if n == FailureSentinel {
		return NewError("read", f.path, ErrRead, nil)
	}
	// a driver may not report more than the window it was given
	if n > buf.Len() {
		return NewError("read", f.path, ErrRead, ErrWindowOutOfRange)
	}
	if err := buf.Limit(n); err != nil {
		return NewError("read", f.path, ErrRead, err)
	}
	return nil
}
