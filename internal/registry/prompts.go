package registry

import (
	"sort"
	"sync"
	"time"

	"toolhub/internal/domain"
)

// PromptRegistry mirrors ToolRegistry for prompt templates.
type PromptRegistry struct {
	mu      sync.RWMutex
	entries map[entryKey]domain.PromptDefinition
}

func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{entries: make(map[entryKey]domain.PromptDefinition)}
}

func (r *PromptRegistry) Register(def domain.PromptDefinition) {
	key := entryKey{provider: def.Provider, name: def.Name}
	stored := def
	stored.Raw = domain.CloneRawJSON(def.Raw)
	if stored.CapturedAt.IsZero() {
		stored.CapturedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[key]; ok {
		if stored.Description == "" {
			stored.Description = existing.Description
		}
		if len(stored.Raw) == 0 {
			stored.Raw = existing.Raw
		}
	}
	r.entries[key] = stored
}

func (r *PromptRegistry) Get(provider, name string) (domain.PromptDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.entries[entryKey{provider: provider, name: name}]
	if ok {
		def.Raw = domain.CloneRawJSON(def.Raw)
	}
	return def, ok
}

func (r *PromptRegistry) RemoveProvider(provider string) int {
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

func (r *PromptRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *PromptRegistry) CountForProvider(provider string) int {
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

func (r *PromptRegistry) Snapshot() domain.CatalogSnapshot {
	r.mu.RLock()
	prompts := make([]domain.PromptDefinition, 0, len(r.entries))
	for _, def := range r.entries {
		def.Raw = domain.CloneRawJSON(def.Raw)
		prompts = append(prompts, def)
	}
	r.mu.RUnlock()

	sort.Slice(prompts, func(i, j int) bool {
		if prompts[i].Provider != prompts[j].Provider {
			return prompts[i].Provider < prompts[j].Provider
		}
		return prompts[i].Name < prompts[j].Name
	})

	return domain.CatalogSnapshot{
		Prompts: prompts,
		ETag:    domain.ETagFor(prompts),
		TakenAt: time.Now(),
	}
}

var _ domain.PromptRegistry = (*PromptRegistry)(nil)
