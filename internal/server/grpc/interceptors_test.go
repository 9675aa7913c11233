package grpcserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/villagekeeper/internal/indexer"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func TestLoggingUnary(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		handler  grpc.UnaryHandler
		wantCode codes.Code
	}{
		{"ok", func(context.Context, any) (any, error) { return "records", nil }, codes.OK},
		{"status error", func(context.Context, any) (any, error) {
			return nil, status.Error(codes.InvalidArgument, "unknown kind")
		}, codes.InvalidArgument},
		{"plain error", func(context.Context, any) (any, error) { return nil, errors.New("db down") }, codes.Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			log, logs := observed(zapcore.InfoLevel)
			ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
			info := &grpc.UnaryServerInfo{FullMethod: indexer.QueryMethod}

			_, err := LoggingUnary(log)(ctx, "req", info, tc.handler)
			require.Equal(t, tc.wantCode, status.Code(err))

			entries := logs.All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			require.Equal(t, indexer.QueryMethod, fields["method"])
			require.Equal(t, tc.wantCode.String(), fields["code"])
			require.Equal(t, "127.0.0.1:12345", fields["peer"])
			require.Contains(t, fields, "dur")
			require.NotContains(t, fields, "req")
		})
	}
}

func TestRecoverUnary(t *testing.T) {
	t.Parallel()

	log, logs := observed(zapcore.ErrorLevel)
	ic := RecoverUnary(log)
	info := &grpc.UnaryServerInfo{FullMethod: indexer.QueryMethod}

	_, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) {
		panic("nil record")
	})
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, 1, logs.FilterMessage("panic").Len())
	require.Equal(t, "nil record", logs.All()[0].ContextMap()["reason"])

	resp, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, resp)
	require.Equal(t, 1, logs.Len())
}

func TestLoggingStream(t *testing.T) {
	t.Parallel()

	log, logs := observed(zapcore.DebugLevel)
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	info := &grpc.StreamServerInfo{FullMethod: indexer.SubscribeMethod, IsServerStream: true}

	err := LoggingStream(log)(nil, stubStream{ctx: ctx}, info, func(any, grpc.ServerStream) error {
		return status.Error(codes.Canceled, "client gone")
	})
	require.Equal(t, codes.Canceled, status.Code(err))

	require.Equal(t, 1, logs.FilterMessage("grpc stream open").Len())
	closed := logs.FilterMessage("grpc stream").All()
	require.Len(t, closed, 1)
	require.Equal(t, codes.Canceled.String(), closed[0].ContextMap()["code"])
	require.Equal(t, "127.0.0.1:12345", closed[0].ContextMap()["peer"])
}

func TestRecoverStream(t *testing.T) {
	t.Parallel()

	log, logs := observed(zapcore.ErrorLevel)
	ic := RecoverStream(log)
	info := &grpc.StreamServerInfo{FullMethod: indexer.SubscribeMethod, IsServerStream: true}

	err := ic(nil, stubStream{ctx: context.Background()}, info, func(any, grpc.ServerStream) error {
		panic("send on closed channel")
	})
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, indexer.SubscribeMethod, logs.All()[0].ContextMap()["method"])

	require.NoError(t, ic(nil, stubStream{ctx: context.Background()}, info, func(any, grpc.ServerStream) error { return nil }))
}
