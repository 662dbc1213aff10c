package migrate

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps backend-type names to adapter constructors. Lookups are
// case-insensitive. It is a pure lookup table; no connection state lives here.
type Registry struct {
	mu   sync.RWMutex
	ctor map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctor: make(map[string]Constructor)}
}

// Register adds a constructor under name, replacing any previous entry.
func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctor[strings.ToLower(name)] = c
}

// Lookup returns the constructor registered under name.
func (r *Registry) Lookup(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ctor[strings.ToLower(name)]
	return c, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns all registered backend-type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctor))
	for n := range r.ctor {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// errUnknownType formats the unsupported-type error with valid alternatives.
func (r *Registry) errUnknownType(role, name string) error {
	return fmt.Errorf("unsupported %s backend type %q (valid: %s)", role, name, strings.Join(r.Names(), ", "))
}
