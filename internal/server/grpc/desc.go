package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/villagekeeper/internal/indexer"
)

// IndexerServer is the server API of the indexer service.
type IndexerServer interface {
	Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Subscribe(req *structpb.Struct, stream grpc.ServerStream) error
}

// RegisterIndexerServer registers srv on s.
func RegisterIndexerServer(s grpc.ServiceRegistrar, srv IndexerServer) {
	s.RegisterService(&indexerServiceDesc, srv)
}

var indexerServiceDesc = grpc.ServiceDesc{
	ServiceName: indexer.ServiceName,
	HandlerType: (*IndexerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: queryHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "indexer/v1/indexer.proto",
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IndexerServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: indexer.QueryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IndexerServer).Query(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(IndexerServer).Subscribe(in, stream)
}
