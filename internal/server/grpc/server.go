// Package grpcserver exposes the dev indexer over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/villagekeeper/internal/indexer"
)

// Server serves queries and subscriptions from an indexer backend.
type Server struct {
	idx indexer.Indexer
	log *zap.Logger
}

// New constructs a server.
func New(idx indexer.Indexer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{idx: idx, log: log}
}

// Query answers {kind, owners[], ids[], limit} with {records[]}.
func (s *Server) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, f, err := indexer.DecodeQuery(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad query: %v", err)
	}
	if f.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "negative limit")
	}
	rs, err := s.idx.Query(ctx, kind, f)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, status.Error(codes.Canceled, "canceled")
		}
		return nil, status.Errorf(codes.Internal, "query: %v", err)
	}
	resp, err := indexer.EncodeRecords(rs)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return resp, nil
}

// Subscribe streams {kind, records[]} batches until the client goes away.
// With auth enabled and no owners given, the caller's own address is used.
func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	kinds, f := indexer.DecodeSubscribe(req)
	if len(kinds) == 0 {
		return status.Error(codes.InvalidArgument, "no kinds")
	}
	if addr, ok := AddressFromCtx(stream.Context()); ok && len(f.Owners) == 0 {
		f.Owners = []string{addr}
	}

	ctx, cancel := context.WithCancel(stream.Context())

	batches := make(chan indexer.Batch, 16)
	sub, err := s.idx.Subscribe(ctx, kinds, f, func(b indexer.Batch) {
		select {
		case batches <- b:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		return status.Errorf(codes.Internal, "subscribe: %v", err)
	}
	defer func() {
		cancel()
		sub.Dispose()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-batches:
			msg, err := indexer.EncodeBatch(b)
			if err != nil {
				s.log.Warn("encode batch", zap.String("kind", b.Kind.String()), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}
