package fs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupFileSystem(t *testing.T) (*mockDriver, *FileSystem) {
	t.Helper()

	driver := &mockDriver{}
	t.Cleanup(func() { driver.AssertExpectations(t) })
	return driver, New(driver)
}

func openTestFile(t *testing.T, driver *mockDriver, fsys *FileSystem, path string, fd Descriptor) *OpenedFile {
	t.Helper()

	driver.On("OpenFile", mock.Anything, path).Return(fd, nil).Once()
	file, err := fsys.Open(context.Background(), path)
	require.NoError(t, err)
	return file
}

func TestOpen(t *testing.T) {
	driver, fsys := setupFileSystem(t)

	file := openTestFile(t, driver, fsys, "unArchivo.txt", 42)

	assert.Equal(t, Descriptor(42), file.Descriptor())
	assert.Equal(t, "unArchivo.txt", file.Path())
	assert.False(t, file.Closed())
}

func TestOpenFailureSentinel(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	driver.On("OpenFile", mock.Anything, "missing.txt").Return(InvalidDescriptor, nil)

	file, err := fsys.Open(context.Background(), "missing.txt")

	require.ErrorIs(t, err, ErrOpen)
	assert.Nil(t, file)
}

func TestOpenDriverError(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	driver.On("OpenFile", mock.Anything, "otroArchivo.txt").Return(InvalidDescriptor, ErrNotExist)

	_, err := fsys.Open(context.Background(), "otroArchivo.txt")

	require.ErrorIs(t, err, ErrOpen)
	require.ErrorIs(t, err, ErrNotExist)

	var fsErr *FSError
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, "open", fsErr.Op)
	assert.Equal(t, "otroArchivo.txt", fsErr.Path)
}

func TestReadNothingAvailable(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(100)

	driver.On("SyncReadFile", mock.Anything, Descriptor(42), buf.Bytes(), 0, 99).Return(0, nil).Once()

	require.NoError(t, file.Read(context.Background(), buf))

	assert.Equal(t, 0, buf.Start())
	assert.Equal(t, -1, buf.End())
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, make([]byte, 100), buf.Bytes())
}

func TestReadSomething(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(10)

	driver.On("SyncReadFile", mock.Anything, Descriptor(42), buf.Bytes(), 0, 9).
		Run(func(args mock.Arguments) {
			storage := args.Get(2).([]byte)
			for i := 0; i < 4; i++ {
				storage[i] = 3
			}
		}).
		Return(4, nil).Once()

	require.NoError(t, file.Read(context.Background(), buf))

	assert.Equal(t, 0, buf.Start())
	assert.Equal(t, 3, buf.End())
	assert.Equal(t, 4, buf.Len())
	assert.Equal(t, []byte{3, 3, 3, 3, 0, 0, 0, 0, 0, 0}, buf.Bytes())
	assert.Equal(t, []byte{3, 3, 3, 3}, buf.Window())
}

func TestReadUsesCurrentWindow(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(10)
	require.NoError(t, buf.Limit(5))

	driver.On("SyncReadFile", mock.Anything, Descriptor(42), mock.Anything, 0, 4).Return(5, nil).Once()

	require.NoError(t, file.Read(context.Background(), buf))
	assert.Equal(t, 5, buf.Len())
}

func TestReadLeavesStaleBytes(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := WrapBuffer([]byte{9, 9, 9, 9})

	driver.On("SyncReadFile", mock.Anything, Descriptor(42), mock.Anything, 0, 3).
		Run(func(args mock.Arguments) {
			args.Get(2).([]byte)[0] = 1
		}).
		Return(1, nil).Once()

	require.NoError(t, file.Read(context.Background(), buf))
	assert.Equal(t, []byte{1}, buf.Window())
	assert.Equal(t, []byte{1, 9, 9, 9}, buf.Bytes())
}

func TestReadFailure(t *testing.T) {
	testCases := []struct {
		name string
		n    int
		err  error
	}{
		{"sentinel", FailureSentinel, nil},
		{"driver error", FailureSentinel, ErrIO},
		{"error with count", 3, ErrIO},
		{"more than the window", 11, nil},
		{"negative count", -7, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			driver, fsys := setupFileSystem(t)
			file := openTestFile(t, driver, fsys, "archivoMalito.txt", 13)
			buf := NewBuffer(10)

			driver.On("SyncReadFile", mock.Anything, Descriptor(13), mock.Anything, mock.Anything, mock.Anything).
				Return(tc.n, tc.err).Once()

			err := file.Read(context.Background(), buf)
			require.ErrorIs(t, err, ErrRead)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			}

			// the buffer is left unmodified
			assert.Equal(t, 10, buf.Len())
			assert.Equal(t, 9, buf.End())
		})
	}
}

func TestWrite(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(10)
	for i := 0; i < 4; i++ {
		buf.Bytes()[i] = 3
	}

	driver.On("SyncWriteFile", mock.Anything, Descriptor(42), buf.Bytes(), 0, 9).Return(nil).Once()

	require.NoError(t, file.Write(context.Background(), buf))

	driver.AssertNumberOfCalls(t, "SyncWriteFile", 1)
	assert.Equal(t, 0, buf.Start())
	assert.Equal(t, 9, buf.End())
	assert.Equal(t, 10, buf.Len())
	assert.Equal(t, []byte{3, 3, 3, 3, 0, 0, 0, 0, 0, 0}, buf.Bytes())
}

func TestWriteUsesCurrentWindow(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(10)
	require.NoError(t, buf.Limit(4))

	driver.On("SyncWriteFile", mock.Anything, Descriptor(42), buf.Bytes(), 0, 3).Return(nil).Once()

	require.NoError(t, file.Write(context.Background(), buf))
	assert.Equal(t, 4, buf.Len())
}

func TestWriteFailure(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(10)
	diskFull := errors.New("no space left on device")

	driver.On("SyncWriteFile", mock.Anything, Descriptor(42), mock.Anything, 0, 9).Return(diskFull).Once()

	err := file.Write(context.Background(), buf)
	require.ErrorIs(t, err, ErrWrite)
	require.ErrorIs(t, err, diskFull)
}

func TestAsyncRead(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(10)

	var complete ReadCompletion
	driver.On("AsyncReadFile", Descriptor(42), buf.Bytes(), 0, 9, mock.Anything).
		Run(func(args mock.Arguments) {
			complete = args.Get(4).(ReadCompletion)
		}).Once()

	calls := 0
	var got *Buffer
	file.AsyncRead(buf, func(b *Buffer, err error) {
		calls++
		got = b
		assert.NoError(t, err)
	})

	require.NotNil(t, complete)
	assert.Zero(t, calls, "callback must wait for the driver")

	buf.Bytes()[0] = 7
	complete(1, nil)

	assert.Equal(t, 1, calls)
	assert.Same(t, buf, got)
	assert.Equal(t, 1, buf.Len())
	assert.Equal(t, 0, buf.End())

	// a misbehaving driver completing twice does not reach the caller again
	complete(5, nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, buf.Len())
}

func TestAsyncReadFailure(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(10)

	driver.On("AsyncReadFile", Descriptor(42), mock.Anything, 0, 9, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(4).(ReadCompletion)(FailureSentinel, nil)
		}).Once()

	var gotErr error
	file.AsyncRead(buf, func(b *Buffer, err error) {
		gotErr = err
	})

	require.ErrorIs(t, gotErr, ErrRead)
	assert.Equal(t, 10, buf.Len())
}

func TestAsyncWrite(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	buf := NewBuffer(10)

	var complete WriteCompletion
	driver.On("AsyncWriteFile", Descriptor(42), buf.Bytes(), 0, 9, mock.Anything).
		Run(func(args mock.Arguments) {
			complete = args.Get(4).(WriteCompletion)
		}).Once()

	calls := 0
	file.AsyncWrite(buf, func(err error) {
		calls++
		assert.NoError(t, err)
	})

	require.NotNil(t, complete)
	assert.Zero(t, calls, "callback must wait for the driver")

	complete(nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 10, buf.Len())
}

func TestAsyncWriteFailure(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)

	driver.On("AsyncWriteFile", Descriptor(42), mock.Anything, 0, 9, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(4).(WriteCompletion)(ErrIO)
		}).Once()

	var gotErr error
	file.AsyncWrite(NewBuffer(10), func(err error) { gotErr = err })

	require.ErrorIs(t, gotErr, ErrWrite)
	require.ErrorIs(t, gotErr, ErrIO)
}

func TestClose(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)

	driver.On("CloseFile", mock.Anything, Descriptor(42)).Return(nil).Once()

	require.NoError(t, file.Close(context.Background()))
	assert.True(t, file.Closed())
	driver.AssertNumberOfCalls(t, "CloseFile", 1)
}

func TestCloseFailure(t *testing.T) {
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)

	driver.On("CloseFile", mock.Anything, Descriptor(42)).Return(ErrBadDescriptor).Once()

	err := file.Close(context.Background())
	require.ErrorIs(t, err, ErrClose)
	require.ErrorIs(t, err, ErrBadDescriptor)
	assert.True(t, file.Closed())
}

func TestOperationsAfterClose(t *testing.T) {
	ctx := context.Background()
	driver, fsys := setupFileSystem(t)
	file := openTestFile(t, driver, fsys, "ejemplo.txt", 42)
	driver.On("CloseFile", mock.Anything, Descriptor(42)).Return(nil).Once()
	require.NoError(t, file.Close(ctx))

	buf := NewBuffer(4)

	require.ErrorIs(t, file.Close(ctx), ErrClosed)
	require.ErrorIs(t, file.Read(ctx, buf), ErrClosed)
	require.ErrorIs(t, file.Write(ctx, buf), ErrClosed)

	var readErr, writeErr error
	file.AsyncRead(buf, func(_ *Buffer, err error) { readErr = err })
	file.AsyncWrite(buf, func(err error) { writeErr = err })
	require.ErrorIs(t, readErr, ErrClosed)
	require.ErrorIs(t, writeErr, ErrClosed)

	// none of the above reached the driver
	driver.AssertNumberOfCalls(t, "CloseFile", 1)
	driver.AssertNotCalled(t, "SyncReadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	driver.AssertNotCalled(t, "SyncWriteFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 4, buf.Len())
}

func TestOpenedFilesShareTheDriver(t *testing.T) {
	driver, fsys := setupFileSystem(t)

	a := openTestFile(t, driver, fsys, "a.txt", 3)
	b := openTestFile(t, driver, fsys, "b.txt", 4)

	assert.Same(t, fsys.Driver(), a.driver)
	assert.Same(t, fsys.Driver(), b.driver)
	assert.NotEqual(t, a.Descriptor(), b.Descriptor())
}
