package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The admin service is small enough to describe by hand; its messages are
// protobuf well-known types.
const (
	AdminServiceName = "captionrelay.admin.v1.RoomAdmin"

	methodGetRoomStatus = "/" + AdminServiceName + "/GetRoomStatus"
	methodListRooms     = "/" + AdminServiceName + "/ListRooms"
)

type RoomAdminServer interface {
	GetRoomStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListRooms(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var RoomAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*RoomAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetRoomStatus", Handler: getRoomStatusHandler},
		{MethodName: "ListRooms", Handler: listRoomsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "captionrelay/admin/v1/admin.proto",
}

func getRoomStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).GetRoomStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetRoomStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).GetRoomStatus(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listRoomsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).ListRooms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListRooms}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).ListRooms(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// RoomAdminClient calls the admin service.
type RoomAdminClient struct {
	cc grpc.ClientConnInterface
}

func NewRoomAdminClient(cc grpc.ClientConnInterface) *RoomAdminClient {
	return &RoomAdminClient{cc: cc}
}

func (c *RoomAdminClient) GetRoomStatus(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetRoomStatus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RoomAdminClient) ListRooms(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListRooms, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
