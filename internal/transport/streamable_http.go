package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolhub/internal/domain"
)

// StreamableHTTP dials providers exposed over streamable HTTP. Static
// headers from the spec ride on every request through a wrapping
// RoundTripper; there is no interactive auth.
type StreamableHTTP struct {
	logger *zap.Logger
}

func NewStreamableHTTP(logger *zap.Logger) *StreamableHTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamableHTTP{logger: logger}
}

func (t *StreamableHTTP) Connect(ctx context.Context, spec domain.ProviderSpec) (Conn, StopFn, error) {
	endpoint := strings.TrimSpace(spec.Endpoint)
	if endpoint == "" {
		return nil, nil, errors.New("endpoint is required for http provider")
	}

	rt, err := buildHeaderRoundTripper(spec)
	if err != nil {
		return nil, nil, err
	}

	maxRetries := spec.MaxRetries
	if maxRetries == 0 {
		maxRetries = domain.DefaultHTTPMaxRetries
	}
	httpTransport := &mcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Transport: rt},
		MaxRetries: maxRetries,
	}

	mcpConn, err := httpTransport.Connect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect streamable http: %w", err)
	}

	conn := newClientConn(mcpConn, spec.Name, t.logger.Named("http_conn"))
	stop := func(context.Context) error { return nil }
	return conn, stop, nil
}

func buildHeaderRoundTripper(spec domain.ProviderSpec) (http.RoundTripper, error) {
	headers := http.Header{}
	if spec.ProtocolVersion != "" {
		headers.Set("Mcp-Protocol-Version", spec.ProtocolVersion)
	}
	for key, value := range spec.Headers {
		name := http.CanonicalHeaderKey(strings.TrimSpace(key))
		if name == "" {
			return nil, errors.New("http headers contain empty key")
		}
		headers.Set(name, value)
	}

	base := http.DefaultTransport
	if base == nil {
		return nil, errors.New("default http transport is nil")
	}
	return &headerRoundTripper{base: base, headers: headers}, nil
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, values := range h.headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return h.base.RoundTrip(req)
}

var _ Transport = (*StreamableHTTP)(nil)
