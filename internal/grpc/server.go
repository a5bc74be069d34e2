package igrpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"friend-graph-service/internal/graph"
	"friend-graph-service/internal/models"
	"friend-graph-service/internal/repositories"
	"friend-graph-service/internal/services"
)

const serviceName = "friendgraph.v1.FriendGraph"

const (
	methodAreFriends         = "/" + serviceName + "/AreFriends"
	methodListFriends        = "/" + serviceName + "/ListFriends"
	methodListFriendRequests = "/" + serviceName + "/ListFriendRequests"
)

// FriendGraph is the read side of the friend graph served to other services.
type FriendGraph interface {
	AreFriends(ctx context.Context, accountID, otherID string) (bool, error)
	ListFriends(ctx context.Context, accountID string) (services.ListResult, error)
	ListFriendRequests(ctx context.Context, accountID string) (services.ListResult, error)
}

// FriendGraphService is the server side of friendgraph.v1.FriendGraph.
type FriendGraphService interface {
	AreFriends(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	ListFriends(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error)
	ListFriendRequests(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error)
}

// FriendGraphServiceDesc describes friendgraph.v1.FriendGraph. Messages are protobuf
// well-known types so no generated code is needed on either side.
var FriendGraphServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FriendGraphService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AreFriends", Handler: areFriendsHandler},
		{MethodName: "ListFriends", Handler: listFriendsHandler},
		{MethodName: "ListFriendRequests", Handler: listFriendRequestsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "friendgraph/v1/friendgraph.proto",
}

func RegisterFriendGraphServer(s grpc.ServiceRegistrar, srv FriendGraphService) {
	s.RegisterService(&FriendGraphServiceDesc, srv)
}

type FriendGraphServer struct {
	graph FriendGraph
}

func NewFriendGraphServer(graph FriendGraph) *FriendGraphServer {
	return &FriendGraphServer{graph: graph}
}

func StartGRPCServer(ctx context.Context, addr string, graph FriendGraph, logger logrus.FieldLogger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)))
	RegisterFriendGraphServer(srv, NewFriendGraphServer(graph))

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	go func() {
		logger.WithField("addr", lis.Addr().String()).Info("gRPC server listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.WithError(err).Error("gRPC server error")
		}
	}()

	return srv, nil
}

func (s *FriendGraphServer) AreFriends(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	userID := req.GetFields()["user_id"].GetStringValue()
	friendID := req.GetFields()["friend_id"].GetStringValue()
	if userID == "" || friendID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and friend_id are required")
	}

	friends, err := s.graph.AreFriends(ctx, userID, friendID)
	if err != nil {
		if errors.Is(err, repositories.ErrAccountNotFound) {
			return nil, status.Error(codes.NotFound, "user not found")
		}
		return nil, status.Errorf(codes.Internal, "failed to check friendship: %v", err)
	}
	return wrapperspb.Bool(friends), nil
}

func (s *FriendGraphServer) ListFriends(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return listResponse(s.graph.ListFriends(ctx, req.GetValue()))
}

func (s *FriendGraphServer) ListFriendRequests(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return listResponse(s.graph.ListFriendRequests(ctx, req.GetValue()))
}

func listResponse(res services.ListResult, err error) (*structpb.ListValue, error) {
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list accounts: %v", err)
	}
	if res.Signal == graph.SignalNotFound {
		return nil, status.Error(codes.NotFound, "user not found")
	}
	return profilesToList(res.Accounts)
}

func profilesToList(profiles []models.PublicProfile) (*structpb.ListValue, error) {
	values := make([]any, 0, len(profiles))
	for _, p := range profiles {
		values = append(values, map[string]any{"id": p.ID, "username": p.Username})
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode accounts: %v", err)
	}
	return list, nil
}

// LoggingInterceptor logs each unary call with its method, duration and status code.
func LoggingInterceptor(logger logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := logger.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start),
		})
		if err != nil && status.Code(err) == codes.Internal {
			entry.WithError(err).Error("gRPC call failed")
		} else {
			entry.Debug("gRPC call")
		}
		return resp, err
	}
}

func areFriendsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FriendGraphService).AreFriends(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodAreFriends}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FriendGraphService).AreFriends(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listFriendsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FriendGraphService).ListFriends(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListFriends}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FriendGraphService).ListFriends(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listFriendRequestsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FriendGraphService).ListFriendRequests(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListFriendRequests}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FriendGraphService).ListFriendRequests(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}
