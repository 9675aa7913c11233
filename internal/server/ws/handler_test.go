package wsserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/indexer"
	"github.com/and161185/villagekeeper/internal/indexer/wsindexer"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/session"
)

var testKey = []byte("ws-test-key")

type fakeSubscriber struct {
	mu       sync.Mutex
	push     func(indexer.Batch)
	subbed   chan indexer.Filter
	disposed chan struct{}
}

func newFake() *fakeSubscriber {
	return &fakeSubscriber{subbed: make(chan indexer.Filter, 1), disposed: make(chan struct{}, 1)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ []model.Kind, flt indexer.Filter, onBatch func(indexer.Batch)) (indexer.Subscription, error) {
	f.mu.Lock()
	f.push = onBatch
	f.mu.Unlock()
	f.subbed <- flt
	return indexer.SubscriptionFunc(func() {
		select {
		case f.disposed <- struct{}{}:
		default:
		}
	}), nil
}

func (f *fakeSubscriber) send(b indexer.Batch) {
	f.mu.Lock()
	push := f.push
	f.mu.Unlock()
	push(b)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFilter(t *testing.T, f *fakeSubscriber) indexer.Filter {
	t.Helper()
	select {
	case flt := <-f.subbed:
		return flt
	case <-time.After(2 * time.Second):
		t.Fatal("server never subscribed")
		return indexer.Filter{}
	}
}

func TestHandler_StreamsBatches(t *testing.T) {
	fake := newFake()
	srv := httptest.NewServer(New(fake, nil, nil, zap.NewNop()))
	defer srv.Close()

	got := make(chan indexer.Batch, 1)
	sub, err := wsindexer.New(wsURL(srv), nil, zap.NewNop()).Subscribe(context.Background(),
		[]model.Kind{model.KindBuilding}, indexer.Filter{Owners: []string{"0xabc"}},
		func(b indexer.Batch) { got <- b })
	require.NoError(t, err)
	require.Equal(t, []string{"0xabc"}, waitFilter(t, fake).Owners)

	fake.send(indexer.Batch{Kind: model.KindBuilding, Records: []convert.Record{
		convert.FromEntity(model.Building{Owner: "0xabc", ID: 9, Type: model.Wall, Level: 1}),
	}})
	select {
	case b := <-got:
		require.Equal(t, model.KindBuilding, b.Kind)
		require.Equal(t, uint32(9), convert.ToBuilding(b.Records[0]).ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch")
	}

	sub.Dispose()
	select {
	case <-fake.disposed:
	case <-time.After(2 * time.Second):
		t.Fatal("server subscription not disposed")
	}
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	srv := httptest.NewServer(New(newFake(), testKey, nil, nil))
	defer srv.Close()

	_, resp, err := websocket.Dial(context.Background(), wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_TokenQueryDefaultsOwner(t *testing.T) {
	fake := newFake()
	srv := httptest.NewServer(New(fake, testKey, nil, nil))
	defer srv.Close()

	tok, _, err := session.NewIssuer(testKey, time.Minute).Issue("0xDEF")
	require.NoError(t, err)

	sub, err := wsindexer.New(wsURL(srv)+"/?token="+tok, nil, nil).Subscribe(context.Background(),
		[]model.Kind{model.KindPlayer}, indexer.Filter{}, func(indexer.Batch) {})
	require.NoError(t, err)
	defer sub.Dispose()

	require.Equal(t, []string{"0xdef"}, waitFilter(t, fake).Owners)
}

func TestHandler_BadSubscribeFrame(t *testing.T) {
	srv := httptest.NewServer(New(newFake(), nil, nil, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"subscribe","kinds":["Nope"]}`)))
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Contains(t, string(data), `"type":"error"`)

	_, _, err = conn.Read(ctx)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=q", nil)
	require.Equal(t, "q", bearerToken(r))
	r.Header.Set("Authorization", "Bearer h")
	require.Equal(t, "h", bearerToken(r))
}
