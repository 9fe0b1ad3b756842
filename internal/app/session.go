package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"toolhub/internal/catalogcache"
	"toolhub/internal/config"
	"toolhub/internal/domain"
	"toolhub/internal/manager"
	"toolhub/internal/registry"
	"toolhub/internal/telemetry"
	"toolhub/internal/transport"
)

// Session is everything one configuration revision needs to run discovery:
// the registries its providers publish into, the transport reaching them,
// the optional catalog cache, and the manager driving the fleet. A config
// change closes the old session and builds a new one from the next snapshot.
type Session struct {
	logger   *zap.Logger
	snapshot config.Snapshot
	tools    *registry.ToolRegistry
	prompts  *registry.PromptRegistry
	cache    *catalogcache.Store
	manager  *manager.Manager
}

// SessionOptions supplies the pieces shared across sessions. Metrics is
// shared because prometheus collectors register once per process, not once
// per revision; Embedded is shared so host-relayed providers survive a
// config reload.
type SessionOptions struct {
	Snapshot config.Snapshot
	Metrics  domain.Metrics
	Embedded *transport.Embedded
}

// NewSession builds a session from one config snapshot. It opens the
// catalog cache when one is configured but does not touch any provider;
// discovery starts on the first Discover call.
func (a *App) NewSession(opts SessionOptions) (*Session, error) {
	cfg := opts.Snapshot.Config
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}

	var cache *catalogcache.Store
	if cfg.Cache.Path != "" {
		var err error
		cache, err = catalogcache.Open(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open catalog cache: %w", err)
		}
	}

	tools := registry.NewToolRegistry()
	prompts := registry.NewPromptRegistry()

	mgr := manager.New(manager.Options{
		Specs:           cfg.Providers,
		Transport:       transport.NewComposite(transport.CompositeOptions{Logger: a.logger, Embedded: opts.Embedded}),
		Tools:           tools,
		Prompts:         prompts,
		Cache:           sessionCache(cache),
		Logger:          a.logger,
		Metrics:         metrics,
		Trusted:         cfg.Workspace.Trusted,
		ProviderTimeout: cfg.Discovery.Timeout(),
	})

	return &Session{
		logger:   a.logger,
		snapshot: opts.Snapshot,
		tools:    tools,
		prompts:  prompts,
		cache:    cache,
		manager:  mgr,
	}, nil
}

// sessionCache narrows the store to the manager's cache interface while
// keeping a nil store an honest nil.
func sessionCache(store *catalogcache.Store) manager.CatalogCache {
	if store == nil {
		return nil
	}
	return store
}

// Discover runs one discovery cycle across the session's providers.
func (s *Session) Discover(ctx context.Context) error {
	return s.manager.DiscoverAll(ctx)
}

// Manager exposes the session's provider client manager.
func (s *Session) Manager() *manager.Manager {
	return s.manager
}

// Revision reports which config revision this session was built from.
func (s *Session) Revision() uint64 {
	return s.snapshot.Revision
}

// Status reports every provider's current state in name order.
func (s *Session) Status() []domain.ProviderStatus {
	return s.manager.Status()
}

// Catalog merges the tool and prompt registries into one snapshot.
func (s *Session) Catalog() domain.CatalogSnapshot {
	toolSnap := s.tools.Snapshot()
	promptSnap := s.prompts.Snapshot()
	merged := domain.CatalogSnapshot{
		Tools:   toolSnap.Tools,
		Prompts: promptSnap.Prompts,
		TakenAt: toolSnap.TakenAt,
	}
	merged.ETag = domain.ETagFor(struct {
		Tools   []domain.ToolDefinition
		Prompts []domain.PromptDefinition
	}{merged.Tools, merged.Prompts})
	return merged
}

// Health summarizes the session for the /healthz endpoint.
func (s *Session) Health() telemetry.HealthReport {
	status := s.Status()
	report := telemetry.HealthReport{
		Status:    "ok",
		Discovery: string(s.manager.DiscoveryState()),
		Providers: len(status),
		Ready:     s.manager.Ready(),
	}
	if report.Providers > 0 && report.Ready == 0 {
		report.Status = "degraded"
	}
	return report
}

// Close stops every provider client and releases the cache. Safe to call
// more than once; teardown problems are logged by the layers that hit them.
func (s *Session) Close(ctx context.Context) {
	s.manager.Stop(ctx)
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("catalog cache close failed", zap.Error(err))
		}
	}
}
