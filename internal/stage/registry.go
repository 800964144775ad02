package stage

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps stage type names to factories. It is populated at startup by
// stage modules and read concurrently by the scheduler's workers.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Module is implemented by packages that contribute stage types.
type Module interface {
	Register(r *Registry)
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given stage type. Registering the same type
// twice is a programmer error and panics at startup.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typ]; exists {
		panic(fmt.Sprintf("stage: type %q registered twice", typ))
	}
	r.factories[typ] = f
}

// New instantiates an unfitted stage of the given type.
func (r *Registry) New(typ string) (Stage, error) {
	r.mu.RLock()
	f, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown stage type %q", typ)
	}
	return f(), nil
}

// Has reports whether a stage type is registered.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typ]
	return ok
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for typ := range r.factories {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}
