package codec

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server serves a local Resolver over the Embed RPC.
type Server struct {
	resolver auditor.Resolver
	logger   *zap.Logger
}

// NewServer wraps resolver. A nil logger discards output.
func NewServer(resolver auditor.Resolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{resolver: resolver, logger: logger.Named("codec")}
}

// Embed implements EmbedServiceServer.
func (s *Server) Embed(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	rep, err := s.resolver.Resolve(ctx, in.GetValue())
	if err != nil {
		s.logger.Debug("embed failed", zap.Int("text_len", len(in.GetValue())), zap.Error(err))
		if errors.Is(err, auditor.ErrUnresolvable) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, len(rep))}
	for i, v := range rep {
		out.Values[i] = structpb.NewNumberValue(v)
	}
	return out, nil
}
