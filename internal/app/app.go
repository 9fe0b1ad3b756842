// Package app wires configuration, registries, transport, cache, metrics,
// and the provider client manager into runnable sessions for the CLI.
package app

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"toolhub/internal/catalogcache"
	"toolhub/internal/config"
	"toolhub/internal/telemetry"
	"toolhub/internal/transport"
)

// App hosts toolhub sessions. One App serves one process; sessions come and
// go with configuration revisions.
type App struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger}
}

// RunOptions configures a discovery run.
type RunOptions struct {
	// ConfigPath locates the YAML configuration file.
	ConfigPath string

	// Watch keeps the process resident after the first cycle: config file
	// changes stop the running session and discover a fresh one.
	Watch bool

	// OnCycle is invoked after each completed discovery cycle with the
	// session that ran it, before any reload can replace that session.
	OnCycle func(*Session)

	// Embedded, when set, is handed to every session's transport so the
	// host can relay messages for in-process providers.
	Embedded *transport.Embedded
}

// Run loads the configuration, runs a discovery cycle, and either returns
// (one-shot) or stays resident reacting to config changes until ctx ends.
// Per-provider failures never surface here; they live in the status table
// and the logs. Run fails only on unusable configuration or a broken cache.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	watcher, err := config.NewWatcher(ctx, opts.ConfigPath, a.logger)
	if err != nil {
		return err
	}
	snapshot := watcher.Snapshot()

	// Collectors register against the process-wide lifetime, so metrics are
	// built once here and shared by every session this run creates.
	promRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(promRegistry)

	current, err := a.NewSession(SessionOptions{
		Snapshot: snapshot,
		Metrics:  metrics,
		Embedded: opts.Embedded,
	})
	if err != nil {
		return err
	}

	// The session behind /healthz changes on reload; the server holds the
	// holder, not the session.
	holder := &sessionHolder{}
	holder.set(current)
	defer func() {
		if s := holder.get(); s != nil {
			s.Close(context.WithoutCancel(ctx))
		}
	}()

	if addr := snapshot.Config.Observability.Listen; addr != "" && opts.Watch {
		go func() {
			err := telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
				Addr:     addr,
				Registry: promRegistry,
				Health:   holder.health,
			}, a.logger)
			if err != nil {
				a.logger.Warn("observability server stopped", zap.Error(err))
			}
		}()
	}

	if err := current.Discover(ctx); err != nil {
		return err
	}
	if opts.OnCycle != nil {
		opts.OnCycle(current)
	}
	if !opts.Watch {
		return nil
	}

	updates := watcher.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			next, err := a.reload(ctx, holder, update, metrics, opts)
			if err != nil {
				a.logger.Error("session rebuild failed",
					zap.Uint64("revision", update.Snapshot.Revision),
					zap.Error(err))
				continue
			}
			if opts.OnCycle != nil {
				opts.OnCycle(next)
			}
		}
	}
}

// reload swaps the running session for one built from the new revision. The
// old session is fully stopped first so the two provider sets never
// overlap, then the new session runs its cycle.
func (a *App) reload(ctx context.Context, holder *sessionHolder, update config.Update, metrics *telemetry.PrometheusMetrics, opts RunOptions) (*Session, error) {
	a.logger.Info("config changed, restarting discovery",
		zap.Uint64("revision", update.Snapshot.Revision),
		zap.String("source", string(update.Source)))

	if old := holder.get(); old != nil {
		old.Close(ctx)
	}

	next, err := a.NewSession(SessionOptions{
		Snapshot: update.Snapshot,
		Metrics:  metrics,
		Embedded: opts.Embedded,
	})
	if err != nil {
		holder.set(nil)
		return nil, err
	}
	holder.set(next)

	if err := next.Discover(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

// Validate loads and validates the configuration without touching any
// provider, returning the resolved config for reporting.
func (a *App) Validate(ctx context.Context, path string) (config.Config, error) {
	return config.NewLoader(a.logger).Load(ctx, path)
}

// CachedCatalog reads every provider's last persisted catalog from the
// cache configured at path's config, without contacting providers.
func (a *App) CachedCatalog(ctx context.Context, configPath string) ([]catalogcache.Entry, error) {
	cfg, err := config.NewLoader(a.logger).Load(ctx, configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Path == "" {
		return nil, catalogcache.ErrNotCached
	}
	store, err := catalogcache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("catalog cache close failed", zap.Error(err))
		}
	}()
	return store.All()
}

type sessionHolder struct {
	mu      sync.RWMutex
	session *Session
}

func (h *sessionHolder) set(s *Session) {
	h.mu.Lock()
	h.session = s
	h.mu.Unlock()
}

func (h *sessionHolder) get() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

func (h *sessionHolder) health() telemetry.HealthReport {
	s := h.get()
	if s == nil {
		return telemetry.HealthReport{Status: "degraded"}
	}
	return s.Health()
}
