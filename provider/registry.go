package provider

import (
	"sort"
	"sync"

	"github.com/kbukum/flowkit/errors"
)

// Registry maps provider ids to factories. Registries are plain values owned
// by whoever compiles workflows; there is no global instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds id to factory, replacing any previous binding.
func (r *Registry) Register(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// Resolve returns the factory for id or an UNKNOWN_PROVIDER error.
func (r *Registry) Resolve(id string) (Factory, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.UnknownProvider(id)
	}
	return factory, nil
}

// List returns sorted ids of all registered factories.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
