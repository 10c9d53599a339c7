package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Registry.Find when no tool is registered under
// the requested name.
var ErrNotFound = errors.New("tools: not found")

// ErrAlreadyRegistered is returned by Registry.Register when a tool with the
// same name is already present.
var ErrAlreadyRegistered = errors.New("tools: already registered")

// Registry holds the set of tools available to a runtime instance. It is
// initialized once at startup (Register calls) and is read-only thereafter;
// List/Find/Export are safe for concurrent use once registration is complete,
// and also safe to call concurrently with Register via an internal mutex.
type Registry struct {
	mu    sync.RWMutex
	specs map[Ident]Spec
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[Ident]Spec)}
}

// Register adds a tool spec to the registry. It returns ErrAlreadyRegistered
// if a tool with the same name is already present.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tools: spec has empty name")
	}
	if spec.Invoke == nil {
		return fmt.Errorf("tools: spec %q has no Invoke function", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// List returns all registered tool specs, ordered by name for deterministic
// output (schema exports and prompts must not jitter between calls).
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Find looks up a tool spec by name.
func (r *Registry) Find(name Ident) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s, nil
}

// SchemaEntry is the rendered form of a tool spec for the LLM tool-calling API.
type SchemaEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ExportLLMSchema renders every registered tool as {name, description,
// parameters} in the shape the LLM tool-calling API consumes.
func (r *Registry) ExportLLMSchema() []SchemaEntry {
	specs := r.List()
	out := make([]SchemaEntry, 0, len(specs))
	for _, s := range specs {
		entry := SchemaEntry{Name: string(s.Name), Description: s.Description}
		if len(s.Payload.Schema) > 0 {
			var params map[string]any
			if err := json.Unmarshal(s.Payload.Schema, &params); err == nil {
				entry.Parameters = params
			}
		}
		out = append(out, entry)
	}
	return out
}
