package igrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"friend-graph-service/internal/models"
)

// FriendGraphClient calls friendgraph.v1.FriendGraph on another instance.
type FriendGraphClient struct {
	conn *grpc.ClientConn
}

func NewFriendGraphClient(addr string, opts ...grpc.DialOption) (*FriendGraphClient, error) {
	if addr == "" {
		return nil, fmt.Errorf("friend graph gRPC address is required")
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial friend graph gRPC: %w", err)
	}
	return &FriendGraphClient{conn: conn}, nil
}

func (c *FriendGraphClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *FriendGraphClient) AreFriends(ctx context.Context, accountID, otherID string) (bool, error) {
	in, err := structpb.NewStruct(map[string]any{"user_id": accountID, "friend_id": otherID})
	if err != nil {
		return false, err
	}
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, methodAreFriends, in, out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *FriendGraphClient) ListFriends(ctx context.Context, accountID string) ([]models.PublicProfile, error) {
	return c.list(ctx, methodListFriends, accountID)
}

func (c *FriendGraphClient) ListFriendRequests(ctx context.Context, accountID string) ([]models.PublicProfile, error) {
	return c.list(ctx, methodListFriendRequests, accountID)
}

func (c *FriendGraphClient) list(ctx context.Context, method, accountID string) ([]models.PublicProfile, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, method, wrapperspb.String(accountID), out); err != nil {
		return nil, err
	}

	profiles := make([]models.PublicProfile, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		fields := v.GetStructValue().GetFields()
		profiles = append(profiles, models.PublicProfile{
			ID:       fields["id"].GetStringValue(),
			Username: fields["username"].GetStringValue(),
		})
	}
	return profiles, nil
}
