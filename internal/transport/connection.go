package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolhub/internal/domain"
)

// clientConn drives one mcp.Connection: a single read loop dispatches
// responses to pending calls and answers unexpected peer requests with
// method-not-found. All transports funnel through this type.
type clientConn struct {
	conn     mcp.Connection
	provider string
	logger   *zap.Logger

	seq atomic.Int64

	mu        sync.Mutex
	pending   map[string]chan callResult
	closeOnce sync.Once
	cancel    context.CancelFunc
	closed    chan struct{}
}

type callResult struct {
	resp *jsonrpc.Response
	err  error
}

func newClientConn(conn mcp.Connection, provider string, logger *zap.Logger) *clientConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &clientConn{
		conn:     conn,
		provider: provider,
		logger:   logger,
		pending:  make(map[string]chan callResult),
		cancel:   cancel,
		closed:   make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c
}

func (c *clientConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, domain.ErrConnectionClosed
	}
	if strings.TrimSpace(method) == "" {
		return nil, errors.New("method is required")
	}
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("encode params for %s: %w", method, err)
	}

	id, err := jsonrpc.MakeID(fmt.Sprintf("hub-%d", c.seq.Add(1)))
	if err != nil {
		return nil, fmt.Errorf("make request id: %w", err)
	}
	key, err := idKey(id)
	if err != nil {
		return nil, err
	}
	req := &jsonrpc.Request{ID: id, Method: method, Params: raw}

	resultCh := make(chan callResult, 1)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, domain.ErrConnectionClosed
	}
	c.pending[key] = resultCh
	c.mu.Unlock()

	if err := c.conn.Write(ctx, req); err != nil {
		c.removePending(key)
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		return decodeResponse(result.resp)
	case <-ctx.Done():
		c.removePending(key)
		return nil, ctx.Err()
	}
}

func (c *clientConn) Notify(ctx context.Context, method string, params any) error {
	if c.isClosed() {
		return domain.ErrConnectionClosed
	}
	if strings.TrimSpace(method) == "" {
		return errors.New("method is required")
	}
	raw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("encode params for %s: %w", method, err)
	}
	req := &jsonrpc.Request{Method: method, Params: raw}
	if err := c.conn.Write(ctx, req); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

func (c *clientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		err = c.conn.Close()
		c.failPending(domain.ErrConnectionClosed)
	})
	return err
}

func (c *clientConn) readLoop(ctx context.Context) {
	for {
		msg, err := c.conn.Read(ctx)
		if err != nil {
			c.failPending(fmt.Errorf("read: %w", err))
			return
		}
		switch typed := msg.(type) {
		case *jsonrpc.Response:
			c.dispatchResponse(typed)
		case *jsonrpc.Request:
			if typed.ID.IsValid() {
				c.rejectPeerCall(ctx, typed)
				continue
			}
			c.handleNotification(typed)
		}
	}
}

func (c *clientConn) dispatchResponse(resp *jsonrpc.Response) {
	key, err := idKey(resp.ID)
	if err != nil {
		c.logger.Debug("drop response with invalid id", zap.Error(err))
		return
	}
	c.mu.Lock()
	ch := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()
	if ch == nil {
		c.logger.Debug("drop response with no pending call", zap.String("id", key))
		return
	}
	ch <- callResult{resp: resp}
}

// rejectPeerCall keeps the wire healthy when a provider calls back into the
// host. This layer never services peer requests.
func (c *clientConn) rejectPeerCall(ctx context.Context, req *jsonrpc.Request) {
	c.logger.Debug("reject peer call", zap.String("method", req.Method))
	if err := c.conn.Write(ctx, newMethodNotFoundResponse(req.ID)); err != nil {
		c.logger.Warn("respond to peer call failed", zap.String("method", req.Method), zap.Error(err))
	}
}

func (c *clientConn) handleNotification(req *jsonrpc.Request) {
	switch req.Method {
	case "notifications/tools/list_changed",
		"notifications/prompts/list_changed",
		"notifications/resources/list_changed":
		// Catalog refresh happens on the next discovery cycle.
		c.logger.Debug("list change notification", zap.String("method", req.Method))
	default:
		c.logger.Debug("ignore notification", zap.String("method", req.Method))
	}
}

func (c *clientConn) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- callResult{err: err}
	}
}

func (c *clientConn) removePending(key string) {
	c.mu.Lock()
	if c.pending != nil {
		delete(c.pending, key)
	}
	c.mu.Unlock()
}

func (c *clientConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func idKey(id jsonrpc.ID) (string, error) {
	if !id.IsValid() {
		return "", errors.New("missing request id")
	}
	raw := id.Raw()
	switch typed := raw.(type) {
	case string:
		return "s:" + typed, nil
	case float64:
		return fmt.Sprintf("n:%v", typed), nil
	case int:
		return fmt.Sprintf("n:%v", typed), nil
	case int64:
		return fmt.Sprintf("n:%v", typed), nil
	case json.Number:
		return "n:" + typed.String(), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", raw)
	}
}

func newMethodNotFoundResponse(id jsonrpc.ID) *jsonrpc.Response {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      id.Raw(),
		"error": map[string]any{
			"code":    domain.CodeMethodNotFound,
			"message": "method not found",
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return &jsonrpc.Response{ID: id, Error: errors.New("method not found")}
	}
	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return &jsonrpc.Response{ID: id, Error: errors.New("method not found")}
	}
	resp, ok := msg.(*jsonrpc.Response)
	if !ok {
		return &jsonrpc.Response{ID: id, Error: errors.New("method not found")}
	}
	return resp
}
