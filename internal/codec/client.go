package codec

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// #region client-struct
// CodecClient resolves text to representations through a remote embedding
// service. It implements auditor.Resolver.
type CodecClient struct {
	conn   *grpc.ClientConn
	client EmbedServiceClient
}

// #endregion client-struct

// #region constructor
// NewCodecClient connects to the embedding gRPC server. Extra dial options
// are appended after the insecure transport credentials.
func NewCodecClient(addr string, opts ...grpc.DialOption) (*CodecClient, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{
		conn:   conn,
		client: NewEmbedServiceClient(conn),
	}, nil
}

// WithCallTimeout bounds every RPC made through the connection to d. Zero
// leaves calls bounded only by their context.
func WithCallTimeout(d time.Duration) grpc.DialOption {
	return grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	})
}

// NewCodecClientWithService creates a CodecClient with an injected service implementation.
func NewCodecClientWithService(svc EmbedServiceClient) *CodecClient {
	return &CodecClient{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region embed
// Embed sends text to the embedding service.
func (c *CodecClient) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.Embed(ctx, wrapperspb.String(text))
	if err != nil {
		return nil, fmt.Errorf("embed rpc: %w", err)
	}
	vals := resp.GetValues()
	vec := make([]float64, len(vals))
	for i, v := range vals {
		vec[i] = v.GetNumberValue()
	}
	return vec, nil
}

// Resolve implements auditor.Resolver. InvalidArgument from the server maps
// to auditor.ErrUnresolvable and DeadlineExceeded to context.DeadlineExceeded.
func (c *CodecClient) Resolve(ctx context.Context, text string) (auditor.Representation, error) {
	vec, err := c.Embed(ctx, text)
	if err != nil {
		switch status.Code(err) {
		case codes.InvalidArgument:
			return nil, fmt.Errorf("%w: %v", auditor.ErrUnresolvable, err)
		case codes.DeadlineExceeded:
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", auditor.ErrUnresolvable)
	}
	return auditor.Representation(vec), nil
}

// #endregion embed
