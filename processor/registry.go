package processor

import (
	"sort"
	"sync"

	"github.com/kbukum/flowkit/errors"
)

// Registry maps processor ids to transform factories and predicate ids to
// predicate factories.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]TransformFactory
	predicates map[string]PredicateFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transforms: make(map[string]TransformFactory),
		predicates: make(map[string]PredicateFactory),
	}
}

// NewBuiltinRegistry creates a registry preloaded with the builtin
// transforms and predicates.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	registerBuiltinPredicates(r)
	registerBuiltinTransforms(r)
	return r
}

// RegisterTransform binds id to a transform factory.
func (r *Registry) RegisterTransform(id string, f TransformFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[id] = f
}

// RegisterPredicate binds id to a predicate factory.
func (r *Registry) RegisterPredicate(id string, f PredicateFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[id] = f
}

// Transform returns the factory for id or an UNKNOWN_PROCESSOR error.
func (r *Registry) Transform(id string) (TransformFactory, error) {
	r.mu.RLock()
	f, ok := r.transforms[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.UnknownProcessor(id)
	}
	return f, nil
}

// Predicate returns the factory for id or an UNKNOWN_PROCESSOR error.
func (r *Registry) Predicate(id string) (PredicateFactory, error) {
	r.mu.RLock()
	f, ok := r.predicates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.UnknownProcessor(id).WithDetail("kind", "predicate")
	}
	return f, nil
}

// Transforms returns the sorted transform ids.
func (r *Registry) Transforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.transforms)
}

// Predicates returns the sorted predicate ids.
func (r *Registry) Predicates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.predicates)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
