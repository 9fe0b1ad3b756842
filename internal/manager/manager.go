// Package manager runs discovery cycles across the configured provider
// fleet. It owns the client set for the current cycle, serializes cycles
// against each other, isolates per-provider failures, and feeds state
// updates to subscribers.
package manager

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolhub/internal/client"
	"toolhub/internal/domain"
	"toolhub/internal/telemetry"
	"toolhub/internal/transport"
)

const updateBuffer = 16

// CatalogCache persists per-provider catalog snapshots between sessions.
// The manager writes best effort; read paths live elsewhere.
type CatalogCache interface {
	Put(provider string, snapshot domain.CatalogSnapshot) error
}

// Options configures a Manager. Transport is required. A nil Cache disables
// persistence, nil Logger and Metrics fall back to no-ops.
type Options struct {
	Specs     map[string]domain.ProviderSpec
	Transport transport.Transport
	Tools     domain.ToolRegistry
	Prompts   domain.PromptRegistry
	Cache     CatalogCache
	Logger    *zap.Logger
	Metrics   domain.Metrics

	// Trusted gates discovery entirely: an untrusted workspace never spawns
	// provider processes or dials provider endpoints.
	Trusted bool

	// ProviderTimeout bounds each provider's connect plus discovery. Specs
	// may override it per provider; zero means the fleet default.
	ProviderTimeout time.Duration
}

// Manager owns one session's provider clients. A fresh set is built per
// discovery cycle; Stop returns the manager to its fresh-constructed state.
type Manager struct {
	specs           map[string]domain.ProviderSpec
	transport       transport.Transport
	tools           domain.ToolRegistry
	prompts         domain.PromptRegistry
	cache           CatalogCache
	logger          *zap.Logger
	metrics         domain.Metrics
	trusted         bool
	providerTimeout time.Duration

	// cycleMu serializes DiscoverAll and Stop so client sets never overlap.
	cycleMu sync.Mutex

	clientMu sync.RWMutex
	clients  map[string]*client.Client

	stateMu        sync.RWMutex
	discoveryState domain.DiscoveryState

	subMu    sync.Mutex
	subs     map[uint64]chan domain.ClientSetUpdate
	nextSub  uint64
	revision atomic.Uint64
}

func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	specs := make(map[string]domain.ProviderSpec, len(opts.Specs))
	for name, spec := range opts.Specs {
		specs[name] = spec
	}
	return &Manager{
		specs:           specs,
		transport:       opts.Transport,
		tools:           opts.Tools,
		prompts:         opts.Prompts,
		cache:           opts.Cache,
		logger:          logger,
		metrics:         metrics,
		trusted:         opts.Trusted,
		providerTimeout: opts.ProviderTimeout,
		clients:         make(map[string]*client.Client),
		discoveryState:  domain.DiscoveryNotStarted,
		subs:            make(map[uint64]chan domain.ClientSetUpdate),
	}
}

// DiscoverAll runs one discovery cycle: stop whatever client set a previous
// cycle left, build a fresh client per enabled spec, then connect and
// discover all of them concurrently. Per-provider failures are isolated:
// each is logged once with the provider's name and recorded in the status
// table, and the cycle still completes. The returned error is always nil
// today; the signature leaves room for cycle-level failures.
func (m *Manager) DiscoverAll(ctx context.Context) error {
	if !m.trusted {
		m.logger.Info("discovery skipped: workspace not trusted",
			telemetry.EventField(telemetry.EventCycleSkipped))
		return nil
	}

	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	cycleID := uuid.NewString()
	logger := m.logger.With(telemetry.CycleIDField(cycleID))
	started := time.Now()

	// A rerun replaces the previous client set wholesale; two sets of
	// provider subprocesses must never coexist.
	m.stopClients(ctx, logger)

	m.setDiscoveryState(domain.DiscoveryInProgress)
	logger.Info("discovery cycle started",
		telemetry.EventField(telemetry.EventCycleStart),
		telemetry.CountField(len(m.specs)))

	clients := m.buildClients()

	var wg sync.WaitGroup
	for _, cl := range clients {
		wg.Add(1)
		go func(cl *client.Client) {
			defer wg.Done()
			m.runProvider(ctx, cl, logger)
		}(cl)
	}
	wg.Wait()

	ready, failed := m.tally()
	m.setDiscoveryState(domain.DiscoveryCompleted)

	duration := time.Since(started)
	m.metrics.ObserveCycle(duration, ready, failed)
	m.metrics.SetActiveClients(ready)
	logger.Info("discovery cycle completed",
		telemetry.EventField(telemetry.EventCycleComplete),
		zap.Int("ready", ready),
		zap.Int("failed", failed),
		telemetry.DurationField(duration))

	m.persistCatalogs(logger)
	return nil
}

// runProvider walks one client through connect and discover under its own
// timeout. Errors stay here: they are already wrapped with the provider
// name, so one error line carries everything a reader needs.
func (m *Manager) runProvider(ctx context.Context, cl *client.Client, logger *zap.Logger) {
	timeout := cl.Spec().DiscoveryTimeout(m.providerTimeout)
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cl.Connect(attemptCtx); err != nil {
		logger.Error("provider failed",
			telemetry.EventField(telemetry.EventConnectFailure),
			telemetry.ProviderField(cl.Name()),
			zap.Error(err))
		return
	}
	if err := cl.Discover(attemptCtx); err != nil {
		logger.Error("provider failed",
			telemetry.EventField(telemetry.EventDiscoverFailure),
			telemetry.ProviderField(cl.Name()),
			zap.Error(err))
	}
}

// buildClients constructs the cycle's client set in name order and emits a
// construction update for each so subscribers see the roster early.
func (m *Manager) buildClients() []*client.Client {
	names := make([]string, 0, len(m.specs))
	for name := range m.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	m.clientMu.Lock()
	defer m.clientMu.Unlock()
	m.clients = make(map[string]*client.Client, len(names))
	out := make([]*client.Client, 0, len(names))
	for _, name := range names {
		spec := m.specs[name]
		if spec.Disabled {
			continue
		}
		cl := client.New(name, spec, client.Options{
			Transport: m.transport,
			Tools:     m.tools,
			Prompts:   m.prompts,
			Logger:    m.logger,
			Metrics:   m.metrics,
			OnState:   m.publish,
		})
		m.clients[name] = cl
		out = append(out, cl)
		m.publish(name, cl.State())
	}
	return out
}

// Stop disconnects every live client concurrently and resets the manager to
// its fresh-constructed state. Teardown errors are logged by the clients,
// never returned. Idempotent.
func (m *Manager) Stop(ctx context.Context) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	m.stopClients(ctx, m.logger)
	m.setDiscoveryState(domain.DiscoveryNotStarted)
	m.metrics.SetActiveClients(0)
}

func (m *Manager) stopClients(ctx context.Context, logger *zap.Logger) {
	m.clientMu.Lock()
	clients := make([]*client.Client, 0, len(m.clients))
	for _, cl := range m.clients {
		clients = append(clients, cl)
	}
	m.clients = make(map[string]*client.Client)
	m.clientMu.Unlock()

	if len(clients) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, cl := range clients {
		wg.Add(1)
		go func(cl *client.Client) {
			defer wg.Done()
			cl.Disconnect(ctx)
		}(cl)
	}
	wg.Wait()
	logger.Debug("client set stopped", telemetry.CountField(len(clients)))
}

// Client returns the named client from the current set.
func (m *Manager) Client(name string) (*client.Client, error) {
	m.clientMu.RLock()
	defer m.clientMu.RUnlock()
	cl, ok := m.clients[name]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return cl, nil
}

// Clients returns the current client set sorted by provider name.
func (m *Manager) Clients() []*client.Client {
	m.clientMu.RLock()
	out := make([]*client.Client, 0, len(m.clients))
	for _, cl := range m.clients {
		out = append(out, cl)
	}
	m.clientMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Status reports a point-in-time snapshot of every client in name order.
func (m *Manager) Status() []domain.ProviderStatus {
	clients := m.Clients()
	out := make([]domain.ProviderStatus, 0, len(clients))
	for _, cl := range clients {
		status := domain.ProviderStatus{
			Name:     cl.Name(),
			State:    cl.State(),
			Tools:    cl.ToolCount(),
			Prompts:  cl.PromptCount(),
			Duration: cl.Duration(),
		}
		if err := cl.Err(); err != nil {
			status.Error = err.Error()
		}
		out = append(out, status)
	}
	return out
}

// DiscoveryState reports where the current cycle stands.
func (m *Manager) DiscoveryState() domain.DiscoveryState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.discoveryState
}

// Ready counts clients currently in the ready state.
func (m *Manager) Ready() int {
	ready := 0
	for _, cl := range m.Clients() {
		if cl.State() == domain.StateReady {
			ready++
		}
	}
	return ready
}

// Subscribe returns a feed of client set updates. Sends never block: a slow
// consumer loses intermediate updates and re-reads Status for truth. The
// subscription ends with ctx, after which the channel is closed.
func (m *Manager) Subscribe(ctx context.Context) <-chan domain.ClientSetUpdate {
	ch := make(chan domain.ClientSetUpdate, updateBuffer)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subMu.Lock()
		delete(m.subs, id)
		close(ch)
		m.subMu.Unlock()
	}()
	return ch
}

// publish fans an update out to every subscriber. Sends happen under subMu
// so an unsubscribing channel can be closed safely.
func (m *Manager) publish(provider string, state domain.ClientState) {
	update := domain.ClientSetUpdate{
		Provider: provider,
		State:    state,
		Revision: m.revision.Add(1),
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

func (m *Manager) setDiscoveryState(state domain.DiscoveryState) {
	m.stateMu.Lock()
	m.discoveryState = state
	m.stateMu.Unlock()
}

func (m *Manager) tally() (ready, failed int) {
	for _, cl := range m.Clients() {
		switch cl.State() {
		case domain.StateReady:
			ready++
		case domain.StateFailed:
			failed++
		}
	}
	return ready, failed
}

// persistCatalogs writes each ready provider's slice of the catalog to the
// cache. Failures are logged and do not affect the cycle outcome.
func (m *Manager) persistCatalogs(logger *zap.Logger) {
	if m.cache == nil {
		return
	}

	var toolSnap, promptSnap domain.CatalogSnapshot
	if m.tools != nil {
		toolSnap = m.tools.Snapshot()
	}
	if m.prompts != nil {
		promptSnap = m.prompts.Snapshot()
	}
	combined := domain.CatalogSnapshot{
		Tools:   toolSnap.Tools,
		Prompts: promptSnap.Prompts,
		TakenAt: toolSnap.TakenAt,
	}

	for _, cl := range m.Clients() {
		if cl.State() != domain.StateReady {
			continue
		}
		if err := m.cache.Put(cl.Name(), combined.ForProvider(cl.Name())); err != nil {
			logger.Warn("persist catalog failed",
				telemetry.ProviderField(cl.Name()),
				zap.Error(err))
		}
	}
}
