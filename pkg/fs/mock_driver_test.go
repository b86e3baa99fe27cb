package fs

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockDriver is a testify mock of Driver. Async operations record the
// completion they were given so tests can fire it whenever they want.
type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) OpenFile(ctx context.Context, path string) (Descriptor, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(Descriptor), args.Error(1)
}

func (m *mockDriver) CloseFile(ctx context.Context, fd Descriptor) error {
	return m.Called(ctx, fd).Error(0)
}

func (m *mockDriver) SyncReadFile(ctx context.Context, fd Descriptor, storage []byte, start, end int) (int, error) {
	args := m.Called(ctx, fd, storage, start, end)
	return args.Int(0), args.Error(1)
}

func (m *mockDriver) SyncWriteFile(ctx context.Context, fd Descriptor, storage []byte, start, end int) error {
	return m.Called(ctx, fd, storage, start, end).Error(0)
}

func (m *mockDriver) AsyncReadFile(fd Descriptor, storage []byte, start, end int, done ReadCompletion) {
	m.Called(fd, storage, start, end, done)
}

func (m *mockDriver) AsyncWriteFile(fd Descriptor, storage []byte, start, end int, done WriteCompletion) {
	m.Called(fd, storage, start, end, done)
}
