// Package control exposes a running supervisor over gRPC so that a second terminal can inspect and steer
// the fleet. Messages are protobuf well-known types; the service is registered from a hand-written
// descriptor under the name peerrunner.v1.Supervisor.
package control

import (
	"context"
	"log"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var logger = log.New(lib.LogWriter, "control: ", log.LstdFlags)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "peerrunner.v1.Supervisor"

// Controller is the supervisor surface served remotely.
type Controller interface {
	State() (string, []lib.PeerStatus)
	StartPeer(ctx context.Context, peerID int) error
	StopPeer(ctx context.Context, peerID int) error
	Restart(ctx context.Context) error
	Output(ctx context.Context, peerID int) (<-chan lib.ConsoleLine, error)
}

// supervisorServer is the handler type of the service descriptor.
type supervisorServer interface {
	State(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StartPeer(context.Context, *wrapperspb.Int32Value) (*emptypb.Empty, error)
	StopPeer(context.Context, *wrapperspb.Int32Value) (*emptypb.Empty, error)
	Restart(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Logs(*wrapperspb.Int32Value, grpc.ServerStreamingServer[structpb.Struct]) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*supervisorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("State", func() *emptypb.Empty { return new(emptypb.Empty) }, func(srv supervisorServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return srv.State(ctx, in)
		}),
		unary("StartPeer", func() *wrapperspb.Int32Value { return new(wrapperspb.Int32Value) }, func(srv supervisorServer, ctx context.Context, in *wrapperspb.Int32Value) (proto.Message, error) {
			return srv.StartPeer(ctx, in)
		}),
		unary("StopPeer", func() *wrapperspb.Int32Value { return new(wrapperspb.Int32Value) }, func(srv supervisorServer, ctx context.Context, in *wrapperspb.Int32Value) (proto.Message, error) {
			return srv.StopPeer(ctx, in)
		}),
		unary("Restart", func() *emptypb.Empty { return new(emptypb.Empty) }, func(srv supervisorServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return srv.Restart(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Logs",
			Handler:       logsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "peerrunner/v1/supervisor.proto",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds a method descriptor that decodes a Req, runs the interceptor chain and calls the handler.
func unary[Req proto.Message](method string, newReq func() Req, call func(supervisorServer, context.Context, Req) (proto.Message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				out, err := call(srv.(supervisorServer), ctx, req.(Req))
				if err != nil {
					return nil, err
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func logsHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.Int32Value)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(supervisorServer).Logs(in, &grpc.GenericServerStream[wrapperspb.Int32Value, structpb.Struct]{ServerStream: stream})
}
