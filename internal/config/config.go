package config

import (
	"time"

	"toolhub/internal/domain"
)

// Config is a fully resolved configuration: defaults applied, environment
// references expanded, validation passed. Provider specs are keyed by name.
type Config struct {
	Workspace     Workspace                      `json:"workspace"`
	Discovery     Discovery                      `json:"discovery"`
	Providers     map[string]domain.ProviderSpec `json:"providers,omitempty"`
	Cache         Cache                          `json:"cache,omitempty"`
	Observability Observability                  `json:"observability,omitempty"`
}

// Workspace carries the trust decision for the directory the hub runs in.
// An untrusted workspace keeps every configured provider inert.
type Workspace struct {
	Trusted bool `json:"trusted"`
}

// Discovery holds fleet-wide discovery settings. Per-provider timeouts in
// the spec override TimeoutSeconds.
type Discovery struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// Timeout returns the fleet default as a duration.
func (d Discovery) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return domain.DefaultDiscoveryTimeout
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// Cache configures the on-disk catalog cache. An empty path disables it.
type Cache struct {
	Path string `json:"path,omitempty"`
}

// Observability configures the metrics listener. An empty address disables
// it.
type Observability struct {
	Listen string `json:"listen,omitempty"`
}

// Snapshot pairs a validated Config with the revision it was loaded at.
// Snapshots are immutable; a new revision replaces the whole value.
type Snapshot struct {
	Config   Config
	Revision uint64
	LoadedAt time.Time
}

// UpdateSource says what triggered a reload.
type UpdateSource string

const (
	UpdateSourceWatch  UpdateSource = "watch"
	UpdateSourceManual UpdateSource = "manual"
)

// Update is delivered to Watch subscribers after a reload that changed the
// configuration.
type Update struct {
	Snapshot Snapshot
	Source   UpdateSource
}
