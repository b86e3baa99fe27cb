package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the driver service.
const ServiceName = "fdfs.v1.Driver"

// Full method names of the driver service.
const (
	OpenMethod  = "/" + ServiceName + "/Open"
	CloseMethod = "/" + ServiceName + "/Close"
	ReadMethod  = "/" + ServiceName + "/Read"
	WriteMethod = "/" + ServiceName + "/Write"
)

// DriverServer is the server API of the driver service. Messages are protobuf
// well-known wrappers:
//
//	Open:  path (StringValue)                 -> sealed handle (BytesValue)
//	Close: sealed handle (BytesValue)         -> Empty
//	Read:  handle + count (BytesValue)        -> data read (BytesValue)
//	Write: handle + payload (BytesValue)      -> bytes written (UInt32Value)
type DriverServer interface {
	Open(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Close(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Read(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Write(context.Context, *wrapperspb.BytesValue) (*wrapperspb.UInt32Value, error)
}

// RegisterDriverServer registers srv on s.
func RegisterDriverServer(s grpc.ServiceRegistrar, srv DriverServer) {
	s.RegisterService(&DriverServiceDesc, srv)
}

// DriverServiceDesc describes the driver service for grpc.Server.
var DriverServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DriverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: openHandler},
		{MethodName: "Close", Handler: closeHandler},
		{MethodName: "Read", Handler: readHandler},
		{MethodName: "Write", Handler: writeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fdfs/v1/driver.proto",
}

func openHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServer).Open(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: OpenMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DriverServer).Open(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func closeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServer).Close(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CloseMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DriverServer).Close(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func readHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReadMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DriverServer).Read(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func writeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServer).Write(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WriteMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DriverServer).Write(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// DriverClient is the client API of the driver service.
type DriverClient struct {
	cc grpc.ClientConnInterface
}

// NewDriverClient creates a client over cc.
func NewDriverClient(cc grpc.ClientConnInterface) *DriverClient {
	return &DriverClient{cc: cc}
}

// Open opens path on the server and returns the sealed handle.
func (c *DriverClient) Open(ctx context.Context, path string, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, OpenMethod, wrapperspb.String(path), out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Close closes the file behind handle.
func (c *DriverClient) Close(ctx context.Context, handle []byte, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, CloseMethod, wrapperspb.Bytes(handle), new(emptypb.Empty), opts...)
}

// Read reads up to count bytes from the file behind handle.
func (c *DriverClient) Read(ctx context.Context, handle []byte, count uint32, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, ReadMethod, ReadRequestToProto(handle, count), out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Write writes payload to the file behind handle and returns the number of
// bytes the server accepted.
func (c *DriverClient) Write(ctx context.Context, handle, payload []byte, opts ...grpc.CallOption) (uint32, error) {
	out := new(wrapperspb.UInt32Value)
	if err := c.cc.Invoke(ctx, WriteMethod, WriteRequestToProto(handle, payload), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}
