package fs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	// HandleSize is the size of a serialized Handle in bytes.
	HandleSize = 16

	// SealedHandleSize is the size of a serialized Handle followed by its tag.
	SealedHandleSize = HandleSize + handleTagSize

	handleTagSize = 8
)

// Handle is the wire representation of a descriptor opened on a remote
// driver. Generation distinguishes successive opens that the driver assigned
// the same descriptor number.
type Handle struct {
	// ServerID identifies the server that issued the handle
	ServerID uint32

	// Descriptor is the descriptor on the server's driver
	Descriptor Descriptor

	// Generation is bumped on every open
	Generation uint32
}

// Serialize converts the handle to a byte slice
func (h *Handle) Serialize() []byte {
	data := make([]byte, HandleSize)

	binary.BigEndian.PutUint32(data[0:4], h.ServerID)
	binary.BigEndian.PutUint64(data[4:12], uint64(h.Descriptor))
	binary.BigEndian.PutUint32(data[12:16], h.Generation)

	return data
}

// DeserializeHandle parses a byte slice into a handle
func DeserializeHandle(data []byte) (*Handle, error) {
	if len(data) < HandleSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHandle, len(data))
	}

	h := &Handle{
		ServerID:   binary.BigEndian.Uint32(data[0:4]),
		Descriptor: Descriptor(binary.BigEndian.Uint64(data[4:12])),
		Generation: binary.BigEndian.Uint32(data[12:16]),
	}

	return h, nil
}

// Seal serializes the handle and appends a tag computed with key, so that a
// server can reject handles it did not issue.
func (h *Handle) Seal(key []byte) []byte {
	data := h.Serialize()
	return append(data, handleTag(key, data)...)
}

// OpenSealed verifies and parses a handle produced by Seal.
func OpenSealed(key, data []byte) (*Handle, error) {
	if len(data) != SealedHandleSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHandle, len(data))
	}
	if !hmac.Equal(data[HandleSize:], handleTag(key, data[:HandleSize])) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidHandle)
	}
	return DeserializeHandle(data[:HandleSize])
}

// String returns a string representation of the handle
func (h *Handle) String() string {
	return fmt.Sprintf("Handle{Server:%d, FD:%d, Gen:%d}",
		h.ServerID, h.Descriptor, h.Generation)
}

func handleTag(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)[:handleTagSize]
}
