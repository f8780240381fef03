// Package remote exposes a batch.Executor over gRPC so that samples can be
// simulated on another host. Messages are google.protobuf.Struct values; the
// field layout is documented on each codec function.
package remote

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "optdriver.v1.SampleExecutor"

const (
	methodSubmit    = "/" + ServiceName + "/Submit"
	methodStatus    = "/" + ServiceName + "/Status"
	methodDrain     = "/" + ServiceName + "/Drain"
	methodTerminate = "/" + ServiceName + "/Terminate"
)

// SampleExecutorServer is the server side of the service
type SampleExecutorServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Drain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Terminate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SampleExecutorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SampleExecutorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(SampleExecutorServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes the SampleExecutor service for grpc.Server
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SampleExecutorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: handler(methodSubmit, SampleExecutorServer.Submit)},
		{MethodName: "Status", Handler: handler(methodStatus, SampleExecutorServer.Status)},
		{MethodName: "Drain", Handler: handler(methodDrain, SampleExecutorServer.Drain)},
		{MethodName: "Terminate", Handler: handler(methodTerminate, SampleExecutorServer.Terminate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "optdriver/v1/sample_executor.proto",
}

// RegisterSampleExecutorServer registers srv on s
func RegisterSampleExecutorServer(s grpc.ServiceRegistrar, srv SampleExecutorServer) {
	s.RegisterService(&ServiceDesc, srv)
}
