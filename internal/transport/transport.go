package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"toolhub/internal/domain"
)

// Conn is an established JSON-RPC connection to one provider. Call owns
// request id allocation and returns the peer's result payload; a peer error
// object comes back as *domain.ProtocolError with code and message intact.
type Conn interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Close() error
}

// StopFn releases whatever resources back a Conn: for stdio providers the
// subprocess, for HTTP the session, for embedded providers the relay
// registration. It must be safe to call after Close and at most once per
// connection.
type StopFn func(context.Context) error

// Transport establishes connections for provider specs of one kind.
type Transport interface {
	Connect(ctx context.Context, spec domain.ProviderSpec) (Conn, StopFn, error)
}

// Composite routes each spec to the transport matching its kind. Selection
// happens here and only here; everything downstream handles an opaque Conn.
type Composite struct {
	stdio    *Stdio
	http     *StreamableHTTP
	embedded *Embedded
}

type CompositeOptions struct {
	Logger   *zap.Logger
	Embedded *Embedded
}

func NewComposite(opts CompositeOptions) *Composite {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	embedded := opts.Embedded
	if embedded == nil {
		embedded = NewEmbedded(logger)
	}
	return &Composite{
		stdio:    NewStdio(logger),
		http:     NewStreamableHTTP(logger),
		embedded: embedded,
	}
}

func (t *Composite) Connect(ctx context.Context, spec domain.ProviderSpec) (Conn, StopFn, error) {
	switch kind := domain.NormalizeTransport(spec.Transport); kind {
	case domain.TransportStdio:
		return t.stdio.Connect(ctx, spec)
	case domain.TransportStreamableHTTP:
		return t.http.Connect(ctx, spec)
	case domain.TransportEmbedded:
		return t.embedded.Connect(ctx, spec)
	default:
		return nil, nil, fmt.Errorf("unsupported transport kind %q", kind)
	}
}

var _ Transport = (*Composite)(nil)
