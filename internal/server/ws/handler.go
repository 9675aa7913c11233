// Package wsserver exposes indexer push subscriptions over WebSocket.
package wsserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/indexer"
	"github.com/and161185/villagekeeper/internal/session"
)

// HandshakeTimeout bounds the wait for the subscribe frame.
const HandshakeTimeout = 10 * time.Second

// Handler upgrades requests and streams batch frames for one subscription per connection.
type Handler struct {
	sub     indexer.Subscriber
	key     []byte
	origins []string
	log     *zap.Logger
}

// New constructs a handler. An empty key disables bearer auth; origins are passed to the
// upgrader as allowed Origin patterns.
func New(sub indexer.Subscriber, key []byte, origins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sub: sub, key: key, origins: origins, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	addr := ""
	if len(h.key) > 0 {
		a, err := session.Parse(h.key, bearerToken(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		addr = a
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("ws accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	hctx, cancel := context.WithTimeout(r.Context(), HandshakeTimeout)
	var req indexer.Frame
	err = wsjson.Read(hctx, conn, &req)
	cancel()
	if err != nil {
		h.log.Debug("ws handshake", zap.Error(err))
		return
	}
	kinds := indexer.ParseKinds(req.Kinds)
	if req.Type != indexer.FrameSubscribe || len(kinds) == 0 {
		_ = wsjson.Write(r.Context(), conn, indexer.Frame{Type: indexer.FrameError, Error: "expected subscribe frame with kinds"})
		_ = conn.Close(websocket.StatusPolicyViolation, "bad subscribe")
		return
	}
	f := indexer.Filter{Owners: req.Owners}
	if addr != "" && len(f.Owners) == 0 {
		f.Owners = []string{addr}
	}

	// Nothing else is expected from the client; CloseRead ends ctx when it goes away.
	ctx, stop := context.WithCancel(conn.CloseRead(r.Context()))
	batches := make(chan indexer.Batch, 16)
	sub, err := h.sub.Subscribe(ctx, kinds, f, func(b indexer.Batch) {
		select {
		case batches <- b:
		case <-ctx.Done():
		}
	})
	if err != nil {
		stop()
		h.log.Warn("ws subscribe", zap.Error(err))
		_ = wsjson.Write(r.Context(), conn, indexer.Frame{Type: indexer.FrameError, Error: "subscribe failed"})
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer func() {
		stop()
		sub.Dispose()
	}()
	h.log.Debug("ws subscribed", zap.Strings("kinds", req.Kinds), zap.Strings("owners", f.Owners))

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case b := <-batches:
			fr := indexer.Frame{Type: indexer.FrameBatch, Kind: b.Kind.String(), Records: b.Records}
			if err := wsjson.Write(ctx, conn, fr); err != nil {
				h.log.Debug("ws write", zap.Error(err))
				return
			}
		}
	}
}

func bearerToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return r.URL.Query().Get("token")
}
