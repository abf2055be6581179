// Package registry maps index names to constructors.
//
// A Registry is an explicit value owned by the process that builds it; there
// is no package-level registration. Default returns a registry with every
// index variant of this module.
package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/index/flat"
	"github.com/hupe1980/near/index/hnsw"
)

// Registry is a set of named index factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]near.Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]near.Factory),
	}
}

// Default returns a new registry with "flat" and "hnsw" registered under
// their default options.
func Default() *Registry {
	r := New()
	r.MustRegister(flat.Name, flat.Factory())
	r.MustRegister(hnsw.Name, hnsw.Factory())
	return r
}

// Register adds a factory under name. Names are unique.
func (r *Registry) Register(name string, factory near.Factory) error {
	if name == "" {
		return fmt.Errorf("registry: empty name")
	}
	if factory == nil {
		return fmt.Errorf("registry: nil factory for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("registry: %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, factory near.Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Open constructs the index registered under name, bound to space and backend.
func (r *Registry) Open(ctx context.Context, name string, space near.Space, backend near.Backend) (near.Index, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: %w: %q", near.ErrUnknownIndex, name)
	}
	return factory(ctx, space, backend)
}
