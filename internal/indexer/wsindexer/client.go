// Package wsindexer receives indexer pushes over a WebSocket carrying JSON frames.
package wsindexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/indexer"
	"github.com/and161185/villagekeeper/internal/model"
)

// Client implements indexer.Subscriber.
type Client struct {
	url    string
	header http.Header
	log    *zap.Logger
}

// New targets a ws:// or wss:// URL. header is sent with every handshake (e.g. Authorization).
func New(url string, header http.Header, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{url: url, header: header, log: log}
}

// Subscribe dials, sends the subscribe frame and delivers batch frames until Dispose.
func (c *Client) Subscribe(ctx context.Context, kinds []model.Kind, f indexer.Filter, onBatch func(indexer.Batch)) (indexer.Subscription, error) {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	sub := indexer.Frame{Type: indexer.FrameSubscribe, Kinds: indexer.KindNames(kinds), Owners: f.Owners}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(sctx)
			if err != nil {
				if sctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
					c.log.Warn("push channel closed", zap.Error(err))
				}
				return
			}
			fr, err := decodeFrame(data)
			if err != nil {
				c.log.Warn("drop frame", zap.Error(err))
				continue
			}
			switch fr.Type {
			case indexer.FrameBatch:
				kind, ok := model.ParseKind(fr.Kind)
				if !ok {
					c.log.Warn("drop batch", zap.String("kind", fr.Kind))
					continue
				}
				onBatch(indexer.Batch{Kind: kind, Records: fr.Records})
			case indexer.FrameError:
				c.log.Warn("indexer error frame", zap.String("error", fr.Error))
			}
		}
	}()

	var once sync.Once
	return indexer.SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			_ = conn.Close(websocket.StatusNormalClosure, "dispose")
			<-done
		})
	}), nil
}

// decodeFrame keeps numbers as json.Number so felts above 2^53 survive.
func decodeFrame(data []byte) (indexer.Frame, error) {
	var fr indexer.Frame
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fr); err != nil {
		return indexer.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return fr, nil
}
