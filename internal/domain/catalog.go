package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ToolDefinition is one tool as a provider advertised it. Raw carries the
// full wire definition including the input schema, kept opaque so schema
// evolution on the provider side never breaks the registry.
type ToolDefinition struct {
	Provider    string          `json:"provider"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	CapturedAt  time.Time       `json:"capturedAt,omitempty"`
}

// PromptDefinition is one prompt template as a provider advertised it.
type PromptDefinition struct {
	Provider    string          `json:"provider"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	CapturedAt  time.Time       `json:"capturedAt,omitempty"`
}

// CatalogSnapshot is an immutable copy of one registry's contents, sorted
// by provider then name. ETag is a content hash of the sorted definitions.
type CatalogSnapshot struct {
	Tools   []ToolDefinition   `json:"tools,omitempty"`
	Prompts []PromptDefinition `json:"prompts,omitempty"`
	ETag    string             `json:"etag"`
	TakenAt time.Time          `json:"takenAt"`
}

// ToolRegistry is the shared tool collection a discovery cycle publishes
// into. Register is atomic register-if-absent-else-merge keyed by
// (provider, name); there is no rollback operation.
type ToolRegistry interface {
	Register(def ToolDefinition)
	RemoveProvider(provider string) int
	Snapshot() CatalogSnapshot
	Len() int
}

// PromptRegistry is the prompt counterpart of ToolRegistry.
type PromptRegistry interface {
	Register(def PromptDefinition)
	RemoveProvider(provider string) int
	Snapshot() CatalogSnapshot
	Len() int
}

// ForProvider narrows the snapshot to one provider's definitions, etag
// recomputed over the narrowed contents.
func (s CatalogSnapshot) ForProvider(provider string) CatalogSnapshot {
	out := CatalogSnapshot{TakenAt: s.TakenAt}
	for _, def := range s.Tools {
		if def.Provider == provider {
			out.Tools = append(out.Tools, def)
		}
	}
	for _, def := range s.Prompts {
		if def.Provider == provider {
			out.Prompts = append(out.Prompts, def)
		}
	}
	out.ETag = ETagFor(struct {
		Tools   []ToolDefinition
		Prompts []PromptDefinition
	}{out.Tools, out.Prompts})
	return out
}

// ETagFor hashes the marshaled form of an already-sorted definition list.
// Marshal failures yield an empty tag rather than an error; the tag is a
// cache hint, not a correctness input.
func ETagFor(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CloneRawJSON returns a defensive copy so registry snapshots cannot be
// mutated through shared backing arrays.
func CloneRawJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
