// internal/rpc/service.go
// Hand-wired gRPC service descriptor for the CommandChannel contract. This
// plays the role protoc-gen-go-grpc normally fills; it is written by hand
// because the wire messages are plain JSON-codec structs (see codec.go),
// not compiled .proto definitions. The shape — a Server interface, a
// grpc.ServiceDesc, method handler funcs, and a thin Client wrapper around
// grpc.ClientConn.Invoke — mirrors what protoc would emit, so the rest of
// the codebase (internal/hostgateway, internal/remoteproxy) consumes it
// exactly as it would a generated package.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Server is implemented by the host gateway and registered against a
// grpc.Server via RegisterCommandChannelServer.
type Server interface {
	Connect(context.Context, *ConnectRequest) (*ConnectResponse, error)
	Send(context.Context, *SendRequest) (*SendResponse, error)
	Disconnect(context.Context, *DisconnectRequest) (*emptypb.Empty, error)
}

// ServiceName is the fully qualified gRPC service name used in method
// paths ("/gpgbridge.CommandChannel/Connect", ...).
const ServiceName = "gpgbridge.CommandChannel"

// ServiceDesc describes the CommandChannel service to grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Connect", Handler: connectHandler},
		{MethodName: "Send", Handler: sendHandler},
		{MethodName: "Disconnect", Handler: disconnectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/rpc/service.go",
}

// RegisterCommandChannelServer registers srv's methods against s.
func RegisterCommandChannelServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func connectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ConnectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Connect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Connect"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Connect(ctx, req.(*ConnectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func sendHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Send"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Send(ctx, req.(*SendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func disconnectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DisconnectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Disconnect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Disconnect"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Disconnect(ctx, req.(*DisconnectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is a thin wrapper around a grpc.ClientConn implementing the
// CommandChannel contract from the caller's side (internal/remoteproxy).
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an already-dialled connection.
func NewClient(cc *grpc.ClientConn) *Client { return &Client{cc: cc} }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.cc.Close() }

func (c *Client) Connect(ctx context.Context, in *ConnectRequest, opts ...grpc.CallOption) (*ConnectResponse, error) {
	out := new(ConnectResponse)
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Connect", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	out := new(SendResponse)
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Send", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Disconnect(ctx context.Context, in *DisconnectRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Disconnect", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
