package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cartridge/qagent/internal/service"
	"github.com/cartridge/qagent/internal/types"
)

// Client talks to a remote agent over gRPC.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn // nil when the connection is owned by the caller
}

// Dial connects to the agent at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent at %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close cleans up resources
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// RequestAction asks the agent for an action in state.
func (c *Client) RequestAction(ctx context.Context, state types.State) (types.Action, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if state != nil {
		req.Fields[fieldState] = structpb.NewStructValue(numbersStruct(state))
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodRequestAction, req, resp); err != nil {
		return nil, fromStatus(err)
	}
	action, err := numbers(resp, fieldAction)
	if err != nil {
		return nil, err
	}
	return action, nil
}

// UpdateQFactors sends a transition to the agent.
func (c *Client) UpdateQFactors(ctx context.Context, input service.UpdateInput) error {
	if err := c.cc.Invoke(ctx, MethodUpdateQFactors, encodeUpdate(input), new(emptypb.Empty)); err != nil {
		return fromStatus(err)
	}
	return nil
}

// SetMode switches the remote agent's mode.
func (c *Client) SetMode(ctx context.Context, mode types.Mode) error {
	if err := c.cc.Invoke(ctx, MethodSetMode, wrapperspb.String(string(mode)), new(emptypb.Empty)); err != nil {
		return fromStatus(err)
	}
	return nil
}

// Stats fetches the remote agent's statistics.
func (c *Client) Stats(ctx context.Context) (service.Stats, error) {
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetStats, new(emptypb.Empty), resp); err != nil {
		return service.Stats{}, fromStatus(err)
	}
	var stats service.Stats
	if err := fromStruct(resp, &stats); err != nil {
		return service.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}
