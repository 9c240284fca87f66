package container

import (
	"sort"
	"sync"
)

// ── Factories ─────────────────────────────────────────────────────────────────

// Factory builds a concrete service value from its resolved arguments. The
// container resolves "@ref" and "%param%" strings before the factory runs, so
// args contain plain values and live service instances.
//
//	// Symfony resolves `class` through the autoloader; here the factory
//	// name resolves through a registry of Go constructors instead.
//	reg.Register("kernel.logger", func(c *container.Container, args []any) (any, error) {
//	    return slog.New(slog.NewTextHandler(os.Stderr, nil)), nil
//	})
type Factory func(c *Container, args []any) (any, error)

// FactoryRegistry maps factory names referenced by definitions to the Go
// constructors that implement them. A registry is shared by every container
// built from it; registration is typically done once at program start.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactoryRegistry creates an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Register adds a factory under a name. Registering the same name again
// replaces the previous factory: last writer wins, so applications can
// override the built-in kernel factories.
func (r *FactoryRegistry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Lookup returns the factory registered under name.
func (r *FactoryRegistry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Has reports whether a factory is registered under name.
func (r *FactoryRegistry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Merge copies every factory from other into r, overriding on collision.
func (r *FactoryRegistry) Merge(other *FactoryRegistry) {
	if other == nil {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, f := range other.factories {
		r.factories[name] = f
	}
}

// Names returns all registered factory names, sorted.
func (r *FactoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
