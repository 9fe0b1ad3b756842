// Package client drives the lifecycle of a single provider connection:
// connect and handshake, catalog discovery into the shared registries, and
// teardown. One Client serves one provider for one discovery cycle; the
// manager constructs a fresh set per cycle.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolhub/internal/domain"
	"toolhub/internal/telemetry"
	"toolhub/internal/transport"
)

const (
	clientName    = "toolhub"
	clientVersion = "0.1.0"

	teardownTimeout = 5 * time.Second
)

// Options carries the collaborators a Client needs. Transport is required;
// nil registries disable registration for that kind, nil Logger and Metrics
// fall back to no-ops.
type Options struct {
	Transport transport.Transport
	Tools     domain.ToolRegistry
	Prompts   domain.PromptRegistry
	Logger    *zap.Logger
	Metrics   domain.Metrics

	// OnState is invoked after every state transition, outside the client's
	// lock. Used by the manager to feed its update subscribers.
	OnState func(provider string, state domain.ClientState)
}

// Client owns one provider connection and its position in the lifecycle
// state machine. All exported methods are safe for concurrent use.
type Client struct {
	name      string
	spec      domain.ProviderSpec
	transport transport.Transport
	tools     domain.ToolRegistry
	prompts   domain.PromptRegistry
	logger    *zap.Logger
	metrics   domain.Metrics
	onState   func(string, domain.ClientState)

	mu          sync.Mutex
	state       domain.ClientState
	conn        transport.Conn
	stop        transport.StopFn
	caps        domain.CapabilitySet
	lastErr     error
	startedAt   time.Time
	settled     time.Duration
	toolCount   int
	promptCount int
}

func New(name string, spec domain.ProviderSpec, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Client{
		name:      name,
		spec:      spec,
		transport: opts.Transport,
		tools:     opts.Tools,
		prompts:   opts.Prompts,
		logger:    logger.With(telemetry.ProviderField(name)),
		metrics:   metrics,
		onState:   opts.OnState,
		state:     domain.StateUnconnected,
	}
}

// Name returns the provider name this client serves.
func (c *Client) Name() string {
	return c.name
}

// Spec returns the provider spec the client was built from.
func (c *Client) Spec() domain.ProviderSpec {
	return c.spec
}

// State returns the current lifecycle state.
func (c *Client) State() domain.ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the client to failed, nil otherwise.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Capabilities returns the capability set captured during the handshake.
// It is the zero value until the client reaches connected.
func (c *Client) Capabilities() domain.CapabilitySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Conn returns the live connection, nil unless the client is between
// connected and disconnecting.
func (c *Client) Conn() transport.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// ToolCount reports how many tools the last discovery registered.
func (c *Client) ToolCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toolCount
}

// PromptCount reports how many prompts the last discovery registered.
func (c *Client) PromptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promptCount
}

// Duration reports how long the client took from connect start to its
// settled state (ready or failed). Zero while still in flight.
func (c *Client) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// Connect establishes the transport connection and runs the protocol
// handshake. On success the client is connected and its capability set is
// fixed for the life of the connection. Any failure tears down whatever was
// established, moves the client to failed, and returns *ConnectionError.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.StateUnconnected {
		state := c.state
		c.mu.Unlock()
		return &domain.ConnectionError{Provider: c.name, Err: fmt.Errorf("connect from state %q", state)}
	}
	prev := c.state
	c.state = domain.StateConnecting
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.fireState(prev, domain.StateConnecting)

	c.logger.Debug("connecting provider",
		telemetry.EventField(telemetry.EventConnectAttempt),
		telemetry.TransportField(string(domain.NormalizeTransport(c.spec.Transport))))

	conn, stop, err := c.transport.Connect(ctx, c.spec)
	if err != nil {
		return c.failConnect(ctx, nil, nil, err)
	}

	caps, version, err := c.handshake(ctx, conn)
	if err != nil {
		return c.failConnect(ctx, conn, stop, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.stop = stop
	c.caps = caps
	c.mu.Unlock()
	c.setState(domain.StateConnected)

	c.metrics.ObserveConnect(c.name, c.sinceStart(), nil)
	c.logger.Info("provider connected",
		telemetry.EventField(telemetry.EventConnectSuccess),
		zap.String("protocolVersion", version),
		zap.Strings("capabilities", caps.Names()),
		telemetry.DurationField(c.sinceStart()))
	return nil
}

// handshake performs initialize and the initialized notification. The
// response must carry a protocol version this host speaks, server info, and
// a capabilities block.
func (c *Client) handshake(ctx context.Context, conn transport.Conn) (domain.CapabilitySet, string, error) {
	params := &mcp.InitializeParams{
		ProtocolVersion: c.requestedProtocolVersion(),
		ClientInfo: &mcp.Implementation{
			Name:    clientName,
			Version: clientVersion,
		},
		Capabilities: &mcp.ClientCapabilities{
			Sampling: &mcp.SamplingCapabilities{},
		},
	}
	raw, err := conn.Call(ctx, "initialize", params)
	if err != nil {
		return domain.CapabilitySet{}, "", fmt.Errorf("initialize: %w", err)
	}

	caps, version, err := parseInitializeResult(raw, c.spec.ProtocolVersion)
	if err != nil {
		return domain.CapabilitySet{}, "", err
	}

	if err := conn.Notify(ctx, "notifications/initialized", nil); err != nil {
		return domain.CapabilitySet{}, "", fmt.Errorf("initialized notification: %w", err)
	}
	return caps, version, nil
}

func (c *Client) requestedProtocolVersion() string {
	if c.spec.ProtocolVersion != "" {
		return c.spec.ProtocolVersion
	}
	return domain.DefaultProtocolVersion
}

func parseInitializeResult(raw json.RawMessage, override string) (domain.CapabilitySet, string, error) {
	if len(raw) == 0 {
		return domain.CapabilitySet{}, "", errors.New("initialize response missing result")
	}
	var result mcp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.CapabilitySet{}, "", fmt.Errorf("decode initialize result: %w", err)
	}
	if !domain.IsSupportedProtocolVersion(result.ProtocolVersion, override) {
		return domain.CapabilitySet{}, "", fmt.Errorf("%w: %s", domain.ErrUnsupportedProtocol, result.ProtocolVersion)
	}
	if result.ServerInfo == nil || result.ServerInfo.Name == "" {
		return domain.CapabilitySet{}, "", errors.New("initialize result missing serverInfo")
	}
	if result.Capabilities == nil {
		return domain.CapabilitySet{}, "", errors.New("initialize result missing capabilities")
	}
	return capabilitiesFromResult(result.Capabilities), result.ProtocolVersion, nil
}

func capabilitiesFromResult(caps *mcp.ServerCapabilities) domain.CapabilitySet {
	out := domain.CapabilitySet{}
	if caps == nil {
		return out
	}
	if caps.Tools != nil {
		out.Tools = true
		out.ToolsListChanged = caps.Tools.ListChanged
	}
	if caps.Prompts != nil {
		out.Prompts = true
	}
	if caps.Resources != nil {
		out.Resources = true
	}
	out.ReadTextFile, out.WriteTextFile = experimentalFileCapabilities(caps.Experimental)
	return out
}

// experimentalFileCapabilities reads the fs block providers use to declare
// host file access: {"fs": {"readTextFile": true, "writeTextFile": true}}.
func experimentalFileCapabilities(exp map[string]any) (read, write bool) {
	block, ok := exp["fs"].(map[string]any)
	if !ok {
		return false, false
	}
	read, _ = block["readTextFile"].(bool)
	write, _ = block["writeTextFile"].(bool)
	return read, write
}

func (c *Client) failConnect(ctx context.Context, conn transport.Conn, stop transport.StopFn, err error) error {
	connErr := &domain.ConnectionError{Provider: c.name, Err: err}
	c.teardown(ctx, conn, stop)

	c.mu.Lock()
	c.lastErr = connErr
	c.settled = time.Since(c.startedAt)
	c.mu.Unlock()
	c.setState(domain.StateFailed)

	c.metrics.ObserveConnect(c.name, c.Duration(), connErr)
	return connErr
}

// Disconnect releases the connection and the transport resources behind it.
// Legal from any state, idempotent, and never returns an error: teardown
// failures are logged and the client still ends disconnected.
func (c *Client) Disconnect(ctx context.Context) {
	c.mu.Lock()
	prev := c.state
	if prev == domain.StateDisconnecting || prev == domain.StateDisconnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	stop := c.stop
	c.conn = nil
	c.stop = nil
	c.state = domain.StateDisconnecting
	c.mu.Unlock()
	c.fireState(prev, domain.StateDisconnecting)

	c.teardown(ctx, conn, stop)
	c.setState(domain.StateDisconnected)
	c.logger.Debug("provider disconnected")
}

// teardown closes the conn and releases the transport. The context is
// normalized the way shutdown paths need: a canceled caller context must not
// leak the subprocess, and an unbounded one must not hang the reap.
func (c *Client) teardown(ctx context.Context, conn transport.Conn, stop transport.StopFn) {
	if conn == nil && stop == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	} else if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, teardownTimeout)
		defer cancel()
	}

	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, domain.ErrConnectionClosed) {
			terr := &domain.TeardownError{Provider: c.name, Err: err}
			c.logger.Warn("close connection failed",
				telemetry.EventField(telemetry.EventTeardownFailure), zap.Error(terr))
		}
	}
	if stop != nil {
		if err := stop(ctx); err != nil {
			terr := &domain.TeardownError{Provider: c.name, Err: err}
			c.logger.Warn("release transport failed",
				telemetry.EventField(telemetry.EventTeardownFailure), zap.Error(terr))
		}
	}
}

// setState moves to the given state unconditionally. Paths that need a
// compare-and-claim do it inline under mu and call fireState themselves.
func (c *Client) setState(state domain.ClientState) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()
	c.fireState(prev, state)
}

// fireState logs the transition and invokes the OnState hook. Runs outside
// the lock so hooks may call back into accessors.
func (c *Client) fireState(prev, state domain.ClientState) {
	if prev == state {
		return
	}
	c.logger.Debug("state transition",
		zap.String("from", string(prev)),
		telemetry.StateField(string(state)))
	if c.onState != nil {
		c.onState(c.name, state)
	}
}

func (c *Client) sinceStart() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startedAt.IsZero() {
		return 0
	}
	return time.Since(c.startedAt)
}
