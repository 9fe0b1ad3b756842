package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolhub/internal/domain"
)

type fakeConn struct {
	readCh  chan jsonrpc.Message
	writeCh chan jsonrpc.Message
	closed  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		readCh:  make(chan jsonrpc.Message, 4),
		writeCh: make(chan jsonrpc.Message, 4),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-f.readCh:
		return msg, nil
	case <-f.closed:
		return nil, mcp.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case f.writeCh <- msg:
		return nil
	case <-f.closed:
		return mcp.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
		return nil
	default:
		close(f.closed)
		return nil
	}
}

func (f *fakeConn) SessionID() string { return "" }

// respondWith answers the next written request using the supplied builder.
func respondWith(t *testing.T, fake *fakeConn, build func(id jsonrpc.ID) jsonrpc.Message) {
	t.Helper()
	go func() {
		select {
		case msg := <-fake.writeCh:
			req, ok := msg.(*jsonrpc.Request)
			if !ok {
				return
			}
			fake.readCh <- build(req.ID)
		case <-time.After(5 * time.Second):
		}
	}()
}

func mustMessage(t *testing.T, raw string) jsonrpc.Message {
	t.Helper()
	msg, err := jsonrpc.DecodeMessage([]byte(raw))
	require.NoError(t, err)
	return msg
}

func TestClientConnCallRoundTrip(t *testing.T) {
	fake := newFakeConn()
	conn := newClientConn(fake, "files", zap.NewNop())
	defer conn.Close()

	respondWith(t, fake, func(id jsonrpc.ID) jsonrpc.Message {
		return &jsonrpc.Response{ID: id, Result: json.RawMessage(`{"ok":true}`)}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := conn.Call(ctx, "ping", map[string]string{"probe": "x"})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(result))
}

func TestClientConnCallPeerError(t *testing.T) {
	fake := newFakeConn()
	conn := newClientConn(fake, "files", zap.NewNop())
	defer conn.Close()

	// First call on a conn always gets id hub-1.
	errorResp := mustMessage(t,
		`{"jsonrpc":"2.0","id":"hub-1","error":{"code":-32002,"message":"Resource not found","data":{"uri":"/x/y.txt"}}}`)
	go func() {
		<-fake.writeCh
		fake.readCh <- errorResp
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := conn.Call(ctx, "fs/read_text_file", map[string]string{"path": "/x/y.txt"})
	require.Error(t, err)

	perr, ok := domain.AsProtocolError(err)
	require.True(t, ok)
	require.EqualValues(t, domain.CodeResourceNotFound, perr.Code)
	require.Equal(t, "Resource not found", perr.Message)
	require.True(t, domain.IsResourceNotFound(err))
}

func TestClientConnCallContextCanceled(t *testing.T) {
	fake := newFakeConn()
	conn := newClientConn(fake, "files", zap.NewNop())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.Call(ctx, "tools/list", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientConnCloseFailsPending(t *testing.T) {
	fake := newFakeConn()
	conn := newClientConn(fake, "files", zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), "tools/list", nil)
		errCh <- err
	}()

	// Wait for the request to hit the wire so the call is pending.
	select {
	case <-fake.writeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("request never written")
	}

	require.NoError(t, conn.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, domain.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never failed")
	}

	_, err := conn.Call(context.Background(), "tools/list", nil)
	require.ErrorIs(t, err, domain.ErrConnectionClosed)
	require.NoError(t, conn.Close())
}

func TestClientConnRejectsPeerCalls(t *testing.T) {
	fake := newFakeConn()
	conn := newClientConn(fake, "files", zap.NewNop())
	defer conn.Close()

	fake.readCh <- mustMessage(t, `{"jsonrpc":"2.0","id":7,"method":"sampling/createMessage","params":{}}`)

	select {
	case msg := <-fake.writeCh:
		resp, ok := msg.(*jsonrpc.Response)
		require.True(t, ok)
		raw, err := jsonrpc.EncodeMessage(resp)
		require.NoError(t, err)
		var wire wireResponse
		require.NoError(t, json.Unmarshal(raw, &wire))
		require.NotNil(t, wire.Error)
		require.EqualValues(t, domain.CodeMethodNotFound, wire.Error.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("no method-not-found reply written")
	}
}

func TestClientConnNotify(t *testing.T) {
	fake := newFakeConn()
	conn := newClientConn(fake, "files", zap.NewNop())
	defer conn.Close()

	require.NoError(t, conn.Notify(context.Background(), "notifications/initialized", nil))

	select {
	case msg := <-fake.writeCh:
		req, ok := msg.(*jsonrpc.Request)
		require.True(t, ok)
		require.Equal(t, "notifications/initialized", req.Method)
		require.False(t, req.ID.IsValid())
	case <-time.After(2 * time.Second):
		t.Fatal("notification never written")
	}

	require.Error(t, conn.Notify(context.Background(), "  ", nil))
}

func TestClientConnIgnoresUnknownNotifications(t *testing.T) {
	fake := newFakeConn()
	conn := newClientConn(fake, "files", zap.NewNop())
	defer conn.Close()

	fake.readCh <- mustMessage(t, `{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`)
	fake.readCh <- mustMessage(t, `{"jsonrpc":"2.0","method":"notifications/unknown"}`)

	// The conn must stay usable afterwards.
	respondWith(t, fake, func(id jsonrpc.ID) jsonrpc.Message {
		return &jsonrpc.Response{ID: id, Result: json.RawMessage(`{}`)}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := conn.Call(ctx, "ping", nil)
	require.NoError(t, err)
}

func TestIDKey(t *testing.T) {
	id, err := jsonrpc.MakeID("abc")
	require.NoError(t, err)
	key, err := idKey(id)
	require.NoError(t, err)
	require.Equal(t, "s:abc", key)

	_, err = idKey(jsonrpc.ID{})
	require.Error(t, err)
}

func TestMarshalParams(t *testing.T) {
	raw, err := marshalParams(nil)
	require.NoError(t, err)
	require.Nil(t, raw)

	raw, err = marshalParams(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(raw))

	raw, err = marshalParams(map[string]int{"a": 1})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(raw))
}
