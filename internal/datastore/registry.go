package datastore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Factory returns a new, unconnected store.
type Factory func() DataStore

// Migrator brings a connected store's schema to the latest version of a
// migration set. migration.Manager implements it.
type Migrator interface {
	Migrate(ctx context.Context, ds DataStore, set string, validateTables bool) error
}

// Registry maps backend names and connection-string schemes to factories.
// It is built explicitly at startup; there is no package-level registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	schemes   map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		schemes:   make(map[string]string),
	}
}

// Register adds a backend under name, reachable also by the given
// connection-string schemes (without "://").
func (r *Registry) Register(name string, f Factory, schemes ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" || f == nil {
		return fmt.Errorf("register backend: name and factory are required")
	}
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("register backend: %q already registered", name)
	}
	for _, s := range schemes {
		if owner, dup := r.schemes[s]; dup {
			return fmt.Errorf("register backend %q: scheme %q already owned by %q", name, s, owner)
		}
	}
	r.factories[name] = f
	for _, s := range schemes {
		r.schemes[s] = name
	}
	return nil
}

// New returns an unconnected store for the named backend.
func (r *Registry) New(name string) (DataStore, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, Errorf(KindBackendUnavailable, "new", "", "no backend named %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(), nil
}

// Names lists registered backends in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Resolve picks the backend for a connection string by its scheme.
func (r *Registry) Resolve(connectionString string) (string, error) {
	scheme, _, ok := strings.Cut(connectionString, "://")
	if !ok {
		scheme, _, ok = strings.Cut(connectionString, ":")
	}
	if !ok {
		// Plain paths go to whichever backend registered the empty scheme.
		scheme = ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, found := r.schemes[strings.ToLower(scheme)]; found {
		return name, nil
	}
	return "", Errorf(KindBackendUnavailable, "resolve", "", "no backend for connection string scheme %q", scheme)
}

// Open resolves the backend by name, or by connection-string scheme when
// name is empty, and connects it.
func (r *Registry) Open(ctx context.Context, name, connectionString, migrationSet string, validateTables bool) (DataStore, error) {
	if name == "" {
		var err error
		if name, err = r.Resolve(connectionString); err != nil {
			return nil, err
		}
	}
	ds, err := r.New(name)
	if err != nil {
		return nil, err
	}
	if err := ds.ConnectToDatabase(ctx, connectionString, migrationSet, validateTables); err != nil {
		_ = ds.Close()
		return nil, err
	}
	return ds, nil
}
