package adaptor

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"genstudio/internal/domain"
)

// Registry maps adaptor ids to implementations.
type Registry struct {
	mu       sync.RWMutex
	adaptors map[string]any
}

func NewRegistry() *Registry {
	return &Registry{adaptors: make(map[string]any)}
}

// Register adds impl under id. impl must implement at least one generator.
func (r *Registry) Register(id string, impl any) error {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return fmt.Errorf("adaptor id is required")
	}
	if len(Capabilities(impl)) == 0 {
		return fmt.Errorf("adaptor %q implements no generator", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adaptors[id] = impl
	return nil
}

// Lookup returns the implementation for id.
func (r *Registry) Lookup(id string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.adaptors[strings.ToLower(strings.TrimSpace(id))]
	return impl, ok
}

// Resolve returns the implementation for id if it supports capability, else
// an AdaptorUnavailable error.
func (r *Registry) Resolve(id string, capability domain.Capability) (any, error) {
	impl, ok := r.Lookup(id)
	if !ok {
		return nil, domain.NewAdaptorUnavailable(id, capability, "not registered")
	}
	if !Supports(impl, capability) {
		return nil, domain.NewAdaptorUnavailable(id, capability, "capability not supported")
	}
	return impl, nil
}

// IDs lists registered adaptor ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adaptors))
	for id := range r.adaptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
