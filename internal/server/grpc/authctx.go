package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/villagekeeper/internal/session"
)

type ctxKey string

const addressKey ctxKey = "vk.address"

// WithAddress stores the authenticated wallet address in context.
func WithAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, addressKey, addr)
}

// AddressFromCtx fetches the authenticated wallet address from context.
func AddressFromCtx(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(addressKey).(string)
	return v, ok && v != ""
}

// AuthUnary requires "authorization: Bearer <JWT>" signed with key and stores its address.
// An empty key disables the check. Health checks are always open.
func AuthUnary(key []byte) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if len(key) == 0 || open(info.FullMethod) {
			return next(ctx, req)
		}
		addr, err := addressFromMD(ctx, key)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		return next(WithAddress(ctx, addr), req)
	}
}

// AuthStream is the streaming counterpart of AuthUnary.
func AuthStream(key []byte) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		if len(key) == 0 || open(info.FullMethod) {
			return next(srv, ss)
		}
		addr, err := addressFromMD(ss.Context(), key)
		if err != nil {
			return status.Error(codes.Unauthenticated, "no auth")
		}
		return next(srv, &ctxStream{ServerStream: ss, ctx: WithAddress(ss.Context(), addr)})
	}
}

func open(method string) bool { return strings.HasPrefix(method, "/grpc.health.v1.Health/") }

type ctxStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *ctxStream) Context() context.Context { return s.ctx }

func addressFromMD(ctx context.Context, key []byte) (string, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return "", err
	}
	return session.Parse(key, tok)
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			if t := strings.TrimSpace(v[7:]); t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
