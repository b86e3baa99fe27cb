package rpc

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
)

// ReadRequestToProto packs a sealed handle and the number of bytes wanted.
func ReadRequestToProto(handle []byte, count uint32) *wrapperspb.BytesValue {
	data := make([]byte, len(handle)+4)
	copy(data, handle)
	binary.BigEndian.PutUint32(data[len(handle):], count)
	return wrapperspb.Bytes(data)
}

// ProtoToReadRequest is the inverse of ReadRequestToProto.
func ProtoToReadRequest(msg *wrapperspb.BytesValue) ([]byte, uint32, error) {
	data := msg.GetValue()
	if len(data) != fs.SealedHandleSize+4 {
		return nil, 0, fmt.Errorf("%w: read request of %d bytes", fs.ErrInvalidHandle, len(data))
	}
	return data[:fs.SealedHandleSize], binary.BigEndian.Uint32(data[fs.SealedHandleSize:]), nil
}

// WriteRequestToProto packs a sealed handle followed by the payload.
func WriteRequestToProto(handle, payload []byte) *wrapperspb.BytesValue {
	data := make([]byte, 0, len(handle)+len(payload))
	data = append(data, handle...)
	data = append(data, payload...)
	return wrapperspb.Bytes(data)
}

// ProtoToWriteRequest is the inverse of WriteRequestToProto. The payload
// shares memory with msg.
func ProtoToWriteRequest(msg *wrapperspb.BytesValue) ([]byte, []byte, error) {
	data := msg.GetValue()
	if len(data) < fs.SealedHandleSize {
		return nil, nil, fmt.Errorf("%w: write request of %d bytes", fs.ErrInvalidHandle, len(data))
	}
	return data[:fs.SealedHandleSize], data[fs.SealedHandleSize:], nil
}
