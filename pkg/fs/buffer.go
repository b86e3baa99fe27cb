package fs

import "fmt"

// Buffer is a fixed capacity byte window. Storage is allocated once and shared
// by reference with drivers so that data is read and written in place.
//
// The valid region is [Start(), End()], End inclusive. An empty window has
// End() == -1. A Buffer is meant for a single owner; it is not safe for
// concurrent use.
type Buffer struct {
	storage []byte
	start   int
	end     int
	size    int
}

// NewBuffer allocates a zero filled Buffer whose window covers the whole
// storage. It panics if capacity is not positive.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("fs: non-positive buffer capacity %d", capacity))
	}
	return WrapBuffer(make([]byte, capacity))
}

// WrapBuffer adopts p as the storage of a new Buffer with a full window.
// The caller must not resize p afterwards. It panics if p is empty.
func WrapBuffer(p []byte) *Buffer {
	if len(p) == 0 {
		panic("fs: empty buffer storage")
	}
	return &Buffer{
		storage: p,
		start:   0,
		end:     len(p) - 1,
		size:    len(p),
	}
}

// Limit narrows the window to the first n bytes of storage. It can be called
// repeatedly, also to widen the window again. n must be in [0, Capacity()];
// otherwise the buffer is left untouched and ErrWindowOutOfRange is returned.
func (b *Buffer) Limit(n int) error {
	if n < 0 || n > len(b.storage) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrWindowOutOfRange, n, len(b.storage))
	}
	b.size = n
	b.end = b.start + n - 1
	return nil
}

// Reset widens the window back to the full capacity.
func (b *Buffer) Reset() {
	b.size = len(b.storage)
	b.end = b.start + b.size - 1
}

// Capacity returns the size of the backing storage.
func (b *Buffer) Capacity() int { return len(b.storage) }

// Len returns the number of valid bytes.
func (b *Buffer) Len() int { return b.size }

// Start returns the index of the first valid byte. It is always 0.
func (b *Buffer) Start() int { return b.start }

// End returns the index of the last valid byte, or -1 when the window is empty.
func (b *Buffer) End() int { return b.end }

// Bytes returns the whole backing storage by reference.
func (b *Buffer) Bytes() []byte { return b.storage }

// Window returns the valid bytes, sharing storage with the buffer.
func (b *Buffer) Window() []byte { return b.storage[b.start : b.end+1] }
