package billyfs

import (
	"context"
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
)

func newTestDriver(t *testing.T, files map[string]string) *Driver {
	t.Helper()

	bfs := memfs.New()
	for name, content := range files {
		require.NoError(t, util.WriteFile(bfs, name, []byte(content), 0644))
	}

	d := New(bfs, DefaultConfig())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDriver_OpenMissing(t *testing.T) {
	d := newTestDriver(t, nil)

	fd, err := d.OpenFile(context.Background(), "missing.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, fs.InvalidDescriptor, fd)
}

func TestDriver_OpenDirectory(t *testing.T) {
	d := newTestDriver(t, map[string]string{"dir/file.txt": "x"})

	_, err := d.OpenFile(context.Background(), "dir")
	require.ErrorIs(t, err, fs.ErrIsDir)
}

func TestDriver_DescriptorsAreNotReused(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, map[string]string{"a.txt": "a"})

	first, err := d.OpenFile(ctx, "a.txt")
	require.NoError(t, err)
	require.NoError(t, d.CloseFile(ctx, first))

	second, err := d.OpenFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.ErrorIs(t, d.CloseFile(ctx, first), fs.ErrBadDescriptor)
}

func TestDriver_ReadWrite(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, map[string]string{"data.txt": "0123456789"})

	fd, err := d.OpenFile(ctx, "data.txt")
	require.NoError(t, err)

	storage := make([]byte, 6)
	n, err := d.SyncReadFile(ctx, fd, storage, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "012345", string(storage))

	n, err = d.SyncReadFile(ctx, fd, storage, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "6789", string(storage[:n]))

	// end of file
	n, err = d.SyncReadFile(ctx, fd, storage, 0, 5)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, d.SyncWriteFile(ctx, fd, []byte("ab"), 0, 1))
	require.NoError(t, d.CloseFile(ctx, fd))

	content, err := util.ReadFile(d.Filesystem(), "data.txt")
	require.NoError(t, err)
	assert.Equal(t, "0123456789ab", string(content))
}

func TestDriver_UnknownDescriptor(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, nil)

	_, err := d.SyncReadFile(ctx, 42, make([]byte, 1), 0, 0)
	require.ErrorIs(t, err, fs.ErrBadDescriptor)

	err = d.SyncWriteFile(ctx, 42, make([]byte, 1), 0, 0)
	require.ErrorIs(t, err, fs.ErrBadDescriptor)
}

func TestDriver_CreateFlag(t *testing.T) {
	ctx := context.Background()

	config := DefaultConfig()
	config.Flag = os.O_RDWR | os.O_CREATE
	d := NewMemory(config)
	defer d.Close()

	fd, err := d.OpenFile(ctx, "new.txt")
	require.NoError(t, err)
	require.NoError(t, d.SyncWriteFile(ctx, fd, []byte("new"), 0, 2))
	require.NoError(t, d.CloseFile(ctx, fd))

	content, err := util.ReadFile(d.Filesystem(), "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestDriver_Async(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, map[string]string{"data.txt": "async"})

	fd, err := d.OpenFile(ctx, "data.txt")
	require.NoError(t, err)

	storage := make([]byte, 8)
	read := make(chan int, 1)
	d.AsyncReadFile(fd, storage, 0, 7, func(n int, err error) {
		assert.NoError(t, err)
		read <- n
	})
	n := <-read
	assert.Equal(t, "async", string(storage[:n]))

	written := make(chan error, 1)
	d.AsyncWriteFile(fd, []byte("!"), 0, 0, func(err error) {
		written <- err
	})
	require.NoError(t, <-written)
}

func TestDriver_CloseReleasesLeakedFiles(t *testing.T) {
	d := NewMemory(DefaultConfig())
	require.NoError(t, util.WriteFile(d.Filesystem(), "a.txt", []byte("a"), 0644))

	fd, err := d.OpenFile(context.Background(), "a.txt")
	require.NoError(t, err)

	require.NoError(t, d.Close())
	require.ErrorIs(t, d.CloseFile(context.Background(), fd), fs.ErrBadDescriptor)

	done := make(chan error, 1)
	d.AsyncWriteFile(fd, []byte("a"), 0, 0, func(err error) { done <- err })
	require.ErrorIs(t, <-done, fs.ErrDriverClosed)
}

func TestDriver_AsyncRejectedWhenBusy(t *testing.T) {
	config := DefaultConfig()
	config.Dispatch.Workers = 1
	config.Dispatch.MaxPending = 1
	d := NewMemory(config)
	defer d.Close()
	require.NoError(t, util.WriteFile(d.Filesystem(), "a.txt", []byte("abc"), 0644))

	fd, err := d.OpenFile(context.Background(), "a.txt")
	require.NoError(t, err)

	release := make(chan struct{})
	first := make(chan error, 1)
	d.AsyncReadFile(fd, make([]byte, 3), 0, 2, func(n int, err error) {
		<-release
		first <- err
	})

	var busyErr error
	d.AsyncReadFile(fd, make([]byte, 3), 0, 2, func(n int, err error) {
		assert.Equal(t, fs.FailureSentinel, n)
		busyErr = err
	})
	require.ErrorIs(t, busyErr, fs.ErrBusy)

	close(release)
	require.NoError(t, <-first)
}
