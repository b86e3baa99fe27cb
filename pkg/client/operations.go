package client

import (
	"context"
	"fmt"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
	"github.com/tostrovsky/tp-so-alternativo/pkg/rpc"
)

// OpenFile opens path on the server. Transient failures are retried.
func (c *Client) OpenFile(ctx context.Context, path string) (fs.Descriptor, error) {
	if c.closed.Load() {
		return fs.InvalidDescriptor, fmt.Errorf("client: open %q: %w", path, fs.ErrDriverClosed)
	}

	var handle []byte
	err := c.callWithRetry(ctx, "Open", func(ctx context.Context) error {
		h, err := c.driverClient.Open(ctx, path)
		handle = h
		return err
	})
	if err != nil {
		return fs.InvalidDescriptor, fmt.Errorf("client: open %q: %w", path, rpc.StatusToError("Open", err))
	}

	fd := c.handles.store(path, handle)
	c.logger.Debug("opened", "path", path, "fd", int(fd))
	return fd, nil
}

// CloseFile closes the remote file behind fd. The descriptor is forgotten
// even when the server reports a failure.
func (c *Client) CloseFile(ctx context.Context, fd fs.Descriptor) error {
	rf, ok := c.handles.remove(fd)
	if !ok {
		return fs.NewError("close", "", fs.ErrBadDescriptor, nil)
	}

	err := c.callWithTimeout(ctx, func(ctx context.Context) error {
		return c.driverClient.Close(ctx, rf.handle)
	})
	if err != nil {
		return fmt.Errorf("client: close %q: %w", rf.path, rpc.StatusToError("Close", err))
	}
	return nil
}

// SyncReadFile reads at most the window's length in a single round trip.
func (c *Client) SyncReadFile(ctx context.Context, fd fs.Descriptor, storage []byte, start, end int) (int, error) {
	p, err := fs.Window(storage, start, end)
	if err != nil {
		return fs.FailureSentinel, err
	}
	rf, ok := c.handles.get(fd)
	if !ok {
		return fs.FailureSentinel, fs.NewError("read", "", fs.ErrBadDescriptor, nil)
	}
	if len(p) == 0 {
		return 0, nil
	}

	var data []byte
	err = c.callWithTimeout(ctx, func(ctx context.Context) error {
		d, err := c.driverClient.Read(ctx, rf.handle, uint32(len(p)))
		data = d
		return err
	})
	if err != nil {
		return fs.FailureSentinel, fmt.Errorf("client: read %q: %w", rf.path, rpc.StatusToError("Read", err))
	}
	if len(data) > len(p) {
		return fs.FailureSentinel, fs.NewError("read", rf.path, fs.ErrIO,
			fmt.Errorf("server returned %d bytes for a %d byte window", len(data), len(p)))
	}
	return copy(p, data), nil
}

// SyncWriteFile writes the whole window, split into WriteChunkSize payloads.
func (c *Client) SyncWriteFile(ctx context.Context, fd fs.Descriptor, storage []byte, start, end int) error {
	p, err := fs.Window(storage, start, end)
	if err != nil {
		return err
	}
	rf, ok := c.handles.get(fd)
	if !ok {
		return fs.NewError("write", "", fs.ErrBadDescriptor, nil)
	}

	for len(p) > 0 {
		chunk := p
		if len(chunk) > c.config.WriteChunkSize {
			chunk = chunk[:c.config.WriteChunkSize]
		}

		var written uint32
		err := c.callWithTimeout(ctx, func(ctx context.Context) error {
			n, err := c.driverClient.Write(ctx, rf.handle, chunk)
			written = n
			return err
		})
		if err != nil {
			return fmt.Errorf("client: write %q: %w", rf.path, rpc.StatusToError("Write", err))
		}
		if int(written) != len(chunk) {
			return fs.NewError("write", rf.path, fs.ErrIO,
				fmt.Errorf("server accepted %d of %d bytes", written, len(chunk)))
		}
		p = p[len(chunk):]
	}
	return nil
}

// AsyncReadFile runs SyncReadFile on the dispatcher.
func (c *Client) AsyncReadFile(fd fs.Descriptor, storage []byte, start, end int, done fs.ReadCompletion) {
	err := c.dispatcher.Go(func() {
		done(c.SyncReadFile(context.Background(), fd, storage, start, end))
	})
	if err != nil {
		done(fs.FailureSentinel, fmt.Errorf("client: async read: %w", err))
	}
}

// AsyncWriteFile runs SyncWriteFile on the dispatcher.
func (c *Client) AsyncWriteFile(fd fs.Descriptor, storage []byte, start, end int, done fs.WriteCompletion) {
	err := c.dispatcher.Go(func() {
		done(c.SyncWriteFile(context.Background(), fd, storage, start, end))
	})
	if err != nil {
		done(fmt.Errorf("client: async write: %w", err))
	}
}
