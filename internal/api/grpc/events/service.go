package events

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "alarmnotifier.v1.AlarmEventService"
	// PublishEventMethod is the full method name of PublishEvent.
	PublishEventMethod = "/" + ServiceName + "/PublishEvent"
)

// AlarmEventServiceServer is the server API of the AlarmEventService.
type AlarmEventServiceServer interface {
	PublishEvent(ctx context.Context, request *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterAlarmEventServiceServer registers srv on the gRPC server.
func RegisterAlarmEventServiceServer(registrar grpc.ServiceRegistrar, srv AlarmEventServiceServer) {
	registrar.RegisterService(&alarmEventServiceDesc, srv)
}

//nolint:gochecknoglobals // gRPC service descriptors are package-level by convention.
var alarmEventServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmEventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PublishEvent",
			Handler:    publishEventHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alarmnotifier/v1/events.proto",
}

// publishEventHandler decodes the request and calls the server, honouring interceptors.
func publishEventHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := dec(request); err != nil {
		return nil, err
	}

	server, _ := srv.(AlarmEventServiceServer)

	if interceptor == nil {
		return server.PublishEvent(ctx, request)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PublishEventMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		in, _ := req.(*structpb.Struct)

		return server.PublishEvent(ctx, in)
	}

	return interceptor(ctx, request, info, handler)
}
