package migration

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Catalog is a registry of migration sets by name.
type Catalog struct {
	mu   sync.RWMutex
	sets map[string]Set
}

// NewCatalog returns a catalog holding sets.
func NewCatalog(sets ...Set) (*Catalog, error) {
	c := &Catalog{sets: make(map[string]Set)}
	for _, s := range sets {
		if err := c.Register(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register validates and adds a set. Names are unique.
func (c *Catalog) Register(s Set) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.sets[s.Name]; dup {
		return fmt.Errorf("migration set %s already registered", s.Name)
	}
	c.sets[s.Name] = s
	return nil
}

// Get returns the named set.
func (c *Catalog) Get(name string) (Set, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sets[name]
	return s, ok
}

// Names lists the registered sets in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.sets))
}

// SetHook attaches a data hook to a registered step, typically one loaded
// from a file.
func (c *Catalog) SetHook(set string, version int, hook DataHook) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[set]
	if !ok {
		return fmt.Errorf("unknown migration set %s", set)
	}
	i := slices.IndexFunc(s.Steps, func(st Step) bool { return st.Version == version })
	if i < 0 {
		return fmt.Errorf("migration set %s has no step %d", set, version)
	}
	s.Steps = slices.Clone(s.Steps)
	s.Steps[i].Data = hook
	c.sets[set] = s
	return nil
}
