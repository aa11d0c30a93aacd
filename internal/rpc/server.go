package rpc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cartridge/qagent/internal/service"
	"github.com/cartridge/qagent/internal/types"
)

// Server implements the Agent gRPC service
type Server struct {
	agent *service.Agent
}

// NewServer creates a new Server
func NewServer(agent *service.Agent) *Server {
	return &Server{agent: agent}
}

// NewGRPCServer builds a gRPC server with the agent service registered.
func NewGRPCServer(agent *service.Agent, logger zerolog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.UnaryInterceptor(LoggingInterceptor(logger))}, opts...)
	server := grpc.NewServer(opts...)
	RegisterAgentServer(server, NewServer(agent))

	// Enable reflection for development
	reflection.Register(server)
	return server
}

// RequestAction chooses an action for {"state": {...}} and returns {"action": {...}}
func (s *Server) RequestAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	state, err := numbers(req, fieldState)
	if err != nil {
		return nil, toStatus(err)
	}
	action, err := s.agent.RequestAction(ctx, state)
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldAction: structpb.NewStructValue(numbersStruct(action)),
	}}, nil
}

// UpdateQFactors records a transition
func (s *Server) UpdateQFactors(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	input, err := decodeUpdate(req)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.agent.UpdateQFactors(ctx, input); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// SetMode switches the operating mode
func (s *Server) SetMode(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.agent.SetMode(ctx, types.Mode(req.GetValue())); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// GetStats returns agent statistics
func (s *Server) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(s.agent.Stats(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// LoggingInterceptor logs gRPC requests
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")

		return resp, err
	}
}
