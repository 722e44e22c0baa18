package db

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/store"
)

// Registry is the in-memory table catalog. Lookups take a read lock only;
// the returned tables guard their own state.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*store.Table
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*store.Table)}
}

func (registry *Registry) Table(name string) (*store.Table, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	table, ok := registry.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTable, name)
	}
	return table, nil
}

func (registry *Registry) Create(name string, table *store.Table) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.tables[name]; exists {
		return fmt.Errorf("%w: table %s already exists", core.ErrInvalidArgument, name)
	}
	registry.tables[name] = table
	return nil
}

func (registry *Registry) Drop(name string) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.tables[name]; !exists {
		return fmt.Errorf("%w: %s", core.ErrUnknownTable, name)
	}
	delete(registry.tables, name)
	return nil
}

func (registry *Registry) Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.tables))
	for name := range registry.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the name-to-table map, for checkpointing.
func (registry *Registry) All() map[string]*store.Table {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	tables := make(map[string]*store.Table, len(registry.tables))
	for name, table := range registry.tables {
		tables[name] = table
	}
	return tables
}
