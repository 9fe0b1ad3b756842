package registry

import (
	"sort"
	"sync"
	"time"

	"toolhub/internal/domain"
)

type entryKey struct {
	provider string
	name     string
}

// ToolRegistry is the in-memory implementation of domain.ToolRegistry.
// Register is last-write-wins per (provider, name); same-named tools from
// different providers coexist. There is no rollback: a provider that fails
// mid-discovery leaves whatever it registered until its next discovery or
// removal.
type ToolRegistry struct {
	mu      sync.RWMutex
	entries map[entryKey]domain.ToolDefinition
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{entries: make(map[entryKey]domain.ToolDefinition)}
}

func (r *ToolRegistry) Register(def domain.ToolDefinition) {
	key := entryKey{provider: def.Provider, name: def.Name}
	stored := def
	stored.Raw = domain.CloneRawJSON(def.Raw)
	if stored.CapturedAt.IsZero() {
		stored.CapturedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[key]; ok {
		stored = mergeTool(existing, stored)
	}
	r.entries[key] = stored
}

// mergeTool lets a re-registration refresh the definition while keeping
// fields the update left empty.
func mergeTool(existing, update domain.ToolDefinition) domain.ToolDefinition {
	if update.Description == "" {
		update.Description = existing.Description
	}
	if len(update.Raw) == 0 {
		update.Raw = existing.Raw
	}
	return update
}

func (r *ToolRegistry) Get(provider, name string) (domain.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.entries[entryKey{provider: provider, name: name}]
	if ok {
		def.Raw = domain.CloneRawJSON(def.Raw)
	}
	return def, ok
}

func (r *ToolRegistry) RemoveProvider(provider string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key := range r.entries {
		if key.provider == provider {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CountForProvider reports how many tools a single provider has registered.
func (r *ToolRegistry) CountForProvider(provider string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for key := range r.entries {
		if key.provider == provider {
			count++
		}
	}
	return count
}

func (r *ToolRegistry) Snapshot() domain.CatalogSnapshot {
	r.mu.RLock()
	tools := make([]domain.ToolDefinition, 0, len(r.entries))
	for _, def := range r.entries {
		def.Raw = domain.CloneRawJSON(def.Raw)
		tools = append(tools, def)
	}
	r.mu.RUnlock()

	sort.Slice(tools, func(i, j int) bool {
		if tools[i].Provider != tools[j].Provider {
			return tools[i].Provider < tools[j].Provider
		}
		return tools[i].Name < tools[j].Name
	})

	return domain.CatalogSnapshot{
		Tools:   tools,
		ETag:    domain.ETagFor(tools),
		TakenAt: time.Now(),
	}
}

var _ domain.ToolRegistry = (*ToolRegistry)(nil)
