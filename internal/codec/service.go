package codec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The Embed RPC carries protobuf well-known types: the request is the text as
// a StringValue and the response is the vector as a ListValue of numbers.

// #region names
const (
	ServiceName = "stp.v1.EmbedService"
	embedMethod = "/stp.v1.EmbedService/Embed"
)

// #endregion names

// #region client-stub
// EmbedServiceClient is the client API for the embedding service.
type EmbedServiceClient interface {
	Embed(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type embedServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEmbedServiceClient binds the client API to a connection.
func NewEmbedServiceClient(cc grpc.ClientConnInterface) EmbedServiceClient {
	return &embedServiceClient{cc: cc}
}

func (c *embedServiceClient) Embed(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, embedMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion client-stub

// #region server-stub
// EmbedServiceServer is the server API for the embedding service.
type EmbedServiceServer interface {
	Embed(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error)
}

// RegisterEmbedServiceServer registers srv on s.
func RegisterEmbedServiceServer(s grpc.ServiceRegistrar, srv EmbedServiceServer) {
	s.RegisterService(&embedServiceDesc, srv)
}

func embedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmbedServiceServer).Embed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: embedMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EmbedServiceServer).Embed(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var embedServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EmbedServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Embed", Handler: embedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stp/v1/embed.proto",
}

// #endregion server-stub
