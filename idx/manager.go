package idx

import (
	"fmt"
	"sync"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/store"
)

// Index is one secondary structure over a single column.
type Index interface {
	Column() string
	Len() int
	OnInsert(value core.Value, position int)
	OnDelete(value core.Value, position int)
	LookupEqual(value core.Value) []int
}

// Manager owns every index built over a set of tables and keeps them
// synchronized with table mutations. The owning engine calls OnInsert and
// Rebuild inside the table's exclusive write section. Index positions are
// only valid against a snapshot of the same table version; readers check
// Version before trusting them, since a rebuild renumbers positions out
// from under older snapshots.
type Manager struct {
	mu     sync.RWMutex
	tables map[string]*tableIndexes
}

type tableIndexes struct {
	byColumn   map[string]Index
	composites []*CompositeIndex

	// version is the table version the indexes reflect. Readers compare it
	// against their snapshot's version before trusting index positions.
	version uint64
}

func NewManager() *Manager {
	return &Manager{tables: make(map[string]*tableIndexes)}
}

func (m *Manager) forTable(table string) *tableIndexes {
	ti, ok := m.tables[table]
	if !ok {
		ti = &tableIndexes{byColumn: make(map[string]Index)}
		m.tables[table] = ti
	}
	return ti
}

// CreateHashIndex builds an equality index over one column from the given
// snapshot.
func (m *Manager) CreateHashIndex(table, column string, snap store.Snapshot) error {
	return m.create(table, column, snap, NewHashIndex(column))
}

// CreateOrderedIndex builds a range-capable index over one column from the
// given snapshot.
func (m *Manager) CreateOrderedIndex(table, column string, snap store.Snapshot) error {
	return m.create(table, column, snap, NewOrderedIndex(column))
}

func (m *Manager) create(table, column string, snap store.Snapshot, index Index) error {
	ord, ok := snap.Schema().Lookup(column)
	if !ok {
		return fmt.Errorf("%w: %s.%s", core.ErrUnknownColumn, table, column)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ti := m.forTable(table)
	if _, exists := ti.byColumn[column]; exists {
		return fmt.Errorf("%w: %s.%s", core.ErrIndexExists, table, column)
	}

	if err := populate(index, snap, ord); err != nil {
		return err
	}
	ti.byColumn[column] = index
	ti.version = snap.Version()
	return nil
}

// CreateCompositeIndex builds one hash sub-index per column; multi-column
// equality lookups intersect the sub-indexes' candidate sets.
func (m *Manager) CreateCompositeIndex(table string, columns []string, snap store.Snapshot) error {
	if len(columns) < 2 {
		return fmt.Errorf("%w: composite index needs at least two columns", core.ErrInvalidArgument)
	}

	composite, err := NewCompositeIndex(columns, snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ti := m.forTable(table)
	for _, existing := range ti.composites {
		if existing.Matches(columns) {
			return fmt.Errorf("%w: %s(%v)", core.ErrIndexExists, table, columns)
		}
	}
	ti.composites = append(ti.composites, composite)
	ti.version = snap.Version()
	return nil
}

// DropIndex removes the single-column index on table.column.
func (m *Manager) DropIndex(table, column string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ti, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("%w: %s.%s", core.ErrIndexNotFound, table, column)
	}
	if _, exists := ti.byColumn[column]; !exists {
		return fmt.Errorf("%w: %s.%s", core.ErrIndexNotFound, table, column)
	}

	delete(ti.byColumn, column)
	return nil
}

// DropTable discards every index built over the table.
func (m *Manager) DropTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, table)
}

// LookupEqual consults the index on table.column, reporting false when no
// index exists there.
func (m *Manager) LookupEqual(table, column string, value core.Value) ([]int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ti, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	index, ok := ti.byColumn[column]
	if !ok {
		return nil, false
	}
	return index.LookupEqual(value), true
}

// LookupRange consults an ordered index on table.column, reporting false
// when none exists (hash indexes cannot answer ranges).
func (m *Manager) LookupRange(table, column string, low, high Bound) ([]int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ti, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	ordered, ok := ti.byColumn[column].(*OrderedIndex)
	if !ok {
		return nil, false
	}
	return ordered.LookupRange(low, high), true
}

// LookupComposite answers a multi-column equality lookup from a matching
// composite index, reporting false when none covers the columns.
func (m *Manager) LookupComposite(table string, columns []string, values []core.Value) ([]int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ti, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	for _, composite := range ti.composites {
		if composite.Matches(columns) {
			return composite.LookupEqual(columns, values), true
		}
	}
	return nil, false
}

// Indexed reports whether any single-column index exists on table.column.
func (m *Manager) Indexed(table, column string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ti, ok := m.tables[table]
	if !ok {
		return false
	}
	_, ok = ti.byColumn[column]
	return ok
}

// Ordered reports whether the index on table.column answers range lookups.
func (m *Manager) Ordered(table, column string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ti, ok := m.tables[table]
	if !ok {
		return false
	}
	_, ok = ti.byColumn[column].(*OrderedIndex)
	return ok
}

// Columns lists the indexed columns of a table.
func (m *Manager) Columns(table string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ti, ok := m.tables[table]
	if !ok {
		return nil
	}
	columns := make([]string, 0, len(ti.byColumn))
	for column := range ti.byColumn {
		columns = append(columns, column)
	}
	return columns
}

// CompositeColumns lists the column sets of a table's composite indexes.
func (m *Manager) CompositeColumns(table string) [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ti, ok := m.tables[table]
	if !ok {
		return nil
	}
	sets := make([][]string, 0, len(ti.composites))
	for _, composite := range ti.composites {
		sets = append(sets, composite.Columns())
	}
	return sets
}

// OnInsert feeds one appended row (in schema order) to every index over the
// table. Call inside the table's write section, before the mutation is
// considered complete.
func (m *Manager) OnInsert(table string, schema core.Schema, row []core.Value, position int, version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ti, ok := m.tables[table]
	if !ok {
		return
	}
	for column, index := range ti.byColumn {
		if ord, ok := schema.Lookup(column); ok && ord < len(row) {
			index.OnInsert(row[ord], position)
		}
	}
	for _, composite := range ti.composites {
		composite.OnInsert(schema, row, position)
	}
	ti.version = version
}

// Rebuild repopulates every index over the table from a fresh snapshot.
// Deletes and updates rebuild column storage and renumber row positions, so
// their index maintenance is a rebuild rather than an incremental fix-up.
func (m *Manager) Rebuild(table string, snap store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ti, ok := m.tables[table]
	if !ok {
		return nil
	}

	for column, index := range ti.byColumn {
		ord, ok := snap.Schema().Lookup(column)
		if !ok {
			// Column dropped by schema evolution; the index goes with it.
			delete(ti.byColumn, column)
			continue
		}
		switch concrete := index.(type) {
		case *HashIndex:
			concrete.clear()
		case *OrderedIndex:
			concrete.clear()
		}
		if err := populate(index, snap, ord); err != nil {
			return err
		}
	}

	composites := ti.composites[:0]
	for _, composite := range ti.composites {
		if err := composite.Rebuild(snap); err != nil {
			continue // a dropped column retires the composite
		}
		composites = append(composites, composite)
	}
	ti.composites = composites
	ti.version = snap.Version()
	return nil
}

// Version reports the table version the indexes over a table reflect, and
// false when the table has no indexes.
func (m *Manager) Version(table string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ti, ok := m.tables[table]
	if !ok || (len(ti.byColumn) == 0 && len(ti.composites) == 0) {
		return 0, false
	}
	return ti.version, true
}

func populate(index Index, snap store.Snapshot, ordinal int) error {
	for r := 0; r < snap.Rows(); r++ {
		value, err := snap.Value(r, ordinal)
		if err != nil {
			return err
		}
		index.OnInsert(value, r)
	}
	return nil
}
