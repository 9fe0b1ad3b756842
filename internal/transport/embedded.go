package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolhub/internal/domain"
)

// OutboundFunc carries one encoded JSON-RPC message from the host to an
// embedded provider.
type OutboundFunc func(ctx context.Context, message json.RawMessage) error

// Embedded serves providers hosted inside the application process: no
// subprocess, no socket. The host registers an outbound callback per
// provider; connects create an endpoint over it and replies come back
// through Deliver. Registrations survive discovery cycles, endpoints do
// not.
type Embedded struct {
	logger *zap.Logger

	mu        sync.Mutex
	outbounds map[string]OutboundFunc
	active    map[string]*EmbeddedEndpoint
}

func NewEmbedded(logger *zap.Logger) *Embedded {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedded{
		logger:    logger,
		outbounds: make(map[string]OutboundFunc),
		active:    make(map[string]*EmbeddedEndpoint),
	}
}

// Register binds a provider name to its outbound callback. Registering an
// already-bound name replaces the callback for future connects; the live
// endpoint, if any, keeps the old one until its cycle ends.
func (t *Embedded) Register(provider string, outbound OutboundFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outbounds[provider] = outbound
}

func (t *Embedded) Unregister(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.outbounds, provider)
}

// Deliver routes one encoded message from the host application to the
// provider's live endpoint.
func (t *Embedded) Deliver(provider string, message json.RawMessage) error {
	t.mu.Lock()
	endpoint := t.active[provider]
	t.mu.Unlock()
	if endpoint == nil {
		return fmt.Errorf("no live embedded endpoint for provider %q", provider)
	}
	return endpoint.Deliver(message)
}

func (t *Embedded) Connect(ctx context.Context, spec domain.ProviderSpec) (Conn, StopFn, error) {
	t.mu.Lock()
	outbound := t.outbounds[spec.Name]
	t.mu.Unlock()
	if outbound == nil {
		return nil, nil, fmt.Errorf("no embedded relay registered for provider %q", spec.Name)
	}

	endpoint := newEmbeddedEndpoint(spec.Name, outbound)
	t.mu.Lock()
	t.active[spec.Name] = endpoint
	t.mu.Unlock()

	conn := newClientConn(endpoint, spec.Name, t.logger.Named("embedded_conn"))
	stop := func(context.Context) error {
		t.mu.Lock()
		if t.active[spec.Name] == endpoint {
			delete(t.active, spec.Name)
		}
		t.mu.Unlock()
		return endpoint.Close()
	}
	return conn, stop, nil
}

// EmbeddedEndpoint is the mcp.Connection for one embedded provider
// connection. Writes run through the outbound callback; reads drain what
// Deliver queued.
type EmbeddedEndpoint struct {
	provider string
	outbound OutboundFunc

	inbound   chan jsonrpc.Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newEmbeddedEndpoint(provider string, outbound OutboundFunc) *EmbeddedEndpoint {
	return &EmbeddedEndpoint{
		provider: provider,
		outbound: outbound,
		inbound:  make(chan jsonrpc.Message, 16),
		closed:   make(chan struct{}),
	}
}

func (e *EmbeddedEndpoint) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-e.inbound:
		return msg, nil
	case <-e.closed:
		return nil, mcp.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *EmbeddedEndpoint) Write(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-e.closed:
		return mcp.ErrConnectionClosed
	default:
	}
	raw, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return e.outbound(ctx, json.RawMessage(raw))
}

func (e *EmbeddedEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
	return nil
}

func (e *EmbeddedEndpoint) SessionID() string { return e.provider }

// Deliver queues one inbound message. It blocks when the reader falls 16
// messages behind rather than dropping replies.
func (e *EmbeddedEndpoint) Deliver(message json.RawMessage) error {
	msg, err := jsonrpc.DecodeMessage(message)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	select {
	case e.inbound <- msg:
		return nil
	case <-e.closed:
		return domain.ErrConnectionClosed
	}
}

var _ Transport = (*Embedded)(nil)
var _ mcp.Connection = (*EmbeddedEndpoint)(nil)
