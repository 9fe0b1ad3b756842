package domain

import (
	"errors"
	"time"
)

// TransportKind selects how a provider connection is established.
type TransportKind string

const (
	// TransportStdio launches the provider as a subprocess and speaks
	// JSON-RPC over its stdin/stdout pipes.
	TransportStdio TransportKind = "stdio"

	// TransportStreamableHTTP dials a remote provider over streamable HTTP.
	TransportStreamableHTTP TransportKind = "streamable_http"

	// TransportEmbedded addresses a provider hosted inside the application
	// process. Messages are relayed through a host-supplied callback; there
	// is no subprocess and no socket.
	TransportEmbedded TransportKind = "embedded"
)

// ProviderSpec describes one external tool provider. The Name doubles as the
// registry tag for every definition the provider contributes.
type ProviderSpec struct {
	Name            string            `json:"name"`
	Transport       TransportKind     `json:"transport"`
	Cmd             []string          `json:"cmd,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	Cwd             string            `json:"cwd,omitempty"`
	Endpoint        string            `json:"endpoint,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	MaxRetries      int               `json:"maxRetries,omitempty"`
	ProtocolVersion string            `json:"protocolVersion,omitempty"`
	TimeoutSeconds  int               `json:"timeoutSeconds,omitempty"`
	IncludeTools    []string          `json:"includeTools,omitempty"`
	Disabled        bool              `json:"disabled,omitempty"`
}

// DiscoveryTimeout returns the per-provider budget for connect plus
// discovery, falling back to the fleet default when the spec does not set
// its own.
func (s ProviderSpec) DiscoveryTimeout(fallback time.Duration) time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultDiscoveryTimeout
}

// ClientState is the lifecycle state of a single provider client.
type ClientState string

const (
	StateUnconnected   ClientState = "unconnected"
	StateConnecting    ClientState = "connecting"
	StateConnected     ClientState = "connected"
	StateDiscovering   ClientState = "discovering"
	StateReady         ClientState = "ready"
	StateDisconnecting ClientState = "disconnecting"
	StateDisconnected  ClientState = "disconnected"
	StateFailed        ClientState = "failed"
)

// Terminal reports whether the state is one a client never leaves on its
// own. Disconnect is still legal from either.
func (s ClientState) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// DiscoveryState is the aggregate state of one discovery cycle across all
// providers. Completed means the cycle finished, not that every provider
// succeeded.
type DiscoveryState string

const (
	DiscoveryNotStarted DiscoveryState = "not_started"
	DiscoveryInProgress DiscoveryState = "in_progress"
	DiscoveryCompleted  DiscoveryState = "completed"
)

// ProviderStatus is a point-in-time snapshot of one client, safe to hand to
// callers.
type ProviderStatus struct {
	Name     string        `json:"name"`
	State    ClientState   `json:"state"`
	Error    string        `json:"error,omitempty"`
	Tools    int           `json:"tools"`
	Prompts  int           `json:"prompts"`
	Duration time.Duration `json:"duration,omitempty"`
}

// ClientSetUpdate is a best-effort change hint emitted after client
// construction and after each state transition. Delivery may drop
// intermediate updates; consumers re-read the manager's status snapshot
// rather than treating the update as the state itself.
type ClientSetUpdate struct {
	Provider string
	State    ClientState
	Revision uint64
}

const (
	DefaultDiscoveryTimeout = 30 * time.Second
	DefaultHTTPMaxRetries   = 3
	DefaultStderrLineLimit  = 32 * 1024
)

var (
	ErrConnectionClosed    = errors.New("connection closed")
	ErrExecutableNotFound  = errors.New("executable not found")
	ErrPermissionDenied    = errors.New("permission denied executing command")
	ErrInvalidCommand      = errors.New("invalid command")
	ErrUnsupportedProtocol = errors.New("unsupported protocol version")
	ErrNotConnected        = errors.New("client not connected")
	ErrWorkspaceUntrusted  = errors.New("workspace not trusted")
	ErrProviderNotFound    = errors.New("provider not found")
)
