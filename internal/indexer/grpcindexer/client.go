// Package grpcindexer talks to the indexer over gRPC using Struct messages.
package grpcindexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/indexer"
	"github.com/and161185/villagekeeper/internal/model"
)

var subscribeDesc = &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}

// Client implements indexer.Indexer.
type Client struct {
	cc  grpc.ClientConnInterface
	log *zap.Logger
}

// New wraps an established connection.
func New(cc grpc.ClientConnInterface, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cc: cc, log: log}
}

// Query performs a unary pull.
func (c *Client) Query(ctx context.Context, kind model.Kind, f indexer.Filter) ([]convert.Record, error) {
	req, err := indexer.EncodeQuery(kind, f)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, indexer.QueryMethod, req, resp); err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	return indexer.DecodeRecords(resp), nil
}

// Subscribe opens a server stream. The stream lives until Dispose or until ctx is done.
func (c *Client) Subscribe(ctx context.Context, kinds []model.Kind, f indexer.Filter, onBatch func(indexer.Batch)) (indexer.Subscription, error) {
	req, err := indexer.EncodeSubscribe(kinds, f)
	if err != nil {
		return nil, fmt.Errorf("encode subscribe: %w", err)
	}
	sctx, cancel := context.WithCancel(ctx)
	stream, err := c.cc.NewStream(sctx, subscribeDesc, indexer.SubscribeMethod)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fmt.Errorf("close send: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
					c.log.Warn("subscription ended", zap.Strings("kinds", indexer.KindNames(kinds)), zap.Error(err))
				}
				return
			}
			b, err := indexer.DecodeBatch(msg)
			if err != nil {
				c.log.Warn("drop batch", zap.Error(err))
				continue
			}
			onBatch(b)
		}
	}()

	var once sync.Once
	return indexer.SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}), nil
}
