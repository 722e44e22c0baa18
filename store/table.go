package store

import (
	"fmt"
	"sync"

	"github.com/nickyhof/GrainDB/core"
)

// Table is a schema plus one equal-length Column per field. A table
// exclusively owns its columns; other tables never alias them except through
// zero-copy views (see View).
//
// Concurrency: any number of readers may hold snapshots while one writer at
// a time mutates. Mutations swap or grow column storage under the write
// lock, so a snapshot taken before a mutation keeps observing the pre-mutation
// rows.
type Table struct {
	mu          sync.RWMutex
	schema      core.Schema
	cols        []*Column
	version     uint64
	rowVersions []uint64
}

func New(schema core.Schema) *Table {
	cols := make([]*Column, schema.Len())
	for i := range cols {
		field := schema.Field(i)
		cols[i] = NewColumn(field.Type, field.Nullable)
	}

	return &Table{schema: schema, cols: cols}
}

func (t *Table) Schema() core.Schema {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema
}

func (t *Table) Rows() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// Version returns the table's mutation counter.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// AppendRow appends one row, values in schema order. Arity violations return
// ErrSchemaMismatch; a null into a non-nullable field returns ErrNullViolation;
// incompatible kinds return ErrTypeMismatch. Int literals widen into float
// fields.
func (t *Table) AppendRow(values []core.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendRowLocked(values)
}

func (t *Table) appendRowLocked(values []core.Value) error {
	if len(values) != t.schema.Len() {
		return fmt.Errorf("%w: got %d values, schema has %d fields",
			core.ErrSchemaMismatch, len(values), t.schema.Len())
	}

	coerced := make([]core.Value, len(values))
	for i, value := range values {
		field := t.schema.Field(i)
		stored, ok := field.Accepts(value)
		if !ok {
			if value.IsNull() {
				return fmt.Errorf("%w: field %s", core.ErrNullViolation, field.Name)
			}
			return fmt.Errorf("%w: %s into %s field %s",
				core.ErrTypeMismatch, value, field.Type, field.Name)
		}
		coerced[i] = stored
	}

	t.version++
	for i, value := range coerced {
		if _, err := t.cols[i].Append(value); err != nil {
			return err
		}
	}
	t.rowVersions = append(t.rowVersions, t.version)
	return nil
}

// Snapshot captures a consistent read view: the column handles and row count
// in effect now. Rows appended or rewritten afterwards are not observed.
type Snapshot struct {
	schema      core.Schema
	cols        []*Column
	rows        int
	version     uint64
	rowVersions []uint64
}

func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows := 0
	if len(t.cols) > 0 {
		rows = t.cols[0].Len()
	}

	return Snapshot{
		schema:      t.schema,
		cols:        append([]*Column(nil), t.cols...),
		rows:        rows,
		version:     t.version,
		rowVersions: t.rowVersions,
	}
}

func (s Snapshot) Schema() core.Schema { return s.schema }

func (s Snapshot) Rows() int { return s.rows }

func (s Snapshot) Version() uint64 { return s.version }

// Visible reports whether the row existed when the snapshot was taken.
func (s Snapshot) Visible(row int) bool {
	if row < 0 || row >= s.rows {
		return false
	}
	if row < len(s.rowVersions) {
		return s.rowVersions[row] <= s.version
	}
	return true
}

func (s Snapshot) Value(row, col int) (core.Value, error) {
	if col < 0 || col >= len(s.cols) {
		return core.Null(), fmt.Errorf("%w: column %d", core.ErrOutOfRange, col)
	}
	if row < 0 || row >= s.rows {
		return core.Null(), fmt.Errorf("%w: %d of %d", core.ErrOutOfRange, row, s.rows)
	}
	return s.cols[col].Get(row)
}

// Row materializes one row in schema order.
func (s Snapshot) Row(row int) ([]core.Value, error) {
	values := make([]core.Value, len(s.cols))
	for i := range s.cols {
		value, err := s.Value(row, i)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// Project returns a new table holding copies of the named columns in the
// given order, preserving row order and count.
func (t *Table) Project(fieldNames []string) (*Table, error) {
	snap := t.Snapshot()

	fields := make([]core.Field, len(fieldNames))
	ordinals := make([]int, len(fieldNames))
	for i, name := range fieldNames {
		ord, ok := snap.schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownColumn, name)
		}
		fields[i] = snap.schema.Field(ord)
		ordinals[i] = ord
	}

	schema, err := core.NewSchema(fields)
	if err != nil {
		return nil, err
	}

	result := New(schema)
	row := make([]core.Value, len(ordinals))
	for r := 0; r < snap.rows; r++ {
		for i, ord := range ordinals {
			value, err := snap.Value(r, ord)
			if err != nil {
				return nil, err
			}
			row[i] = value
		}
		if err := result.AppendRow(row); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Filter returns a new table containing only the rows for which keep returns
// true. Predicates over nulls evaluate to neither-true and are excluded by
// the caller's keep function.
func (t *Table) Filter(keep func(snap Snapshot, row int) bool) (*Table, error) {
	snap := t.Snapshot()
	result := New(snap.schema)

	for r := 0; r < snap.rows; r++ {
		if !snap.Visible(r) || !keep(snap, r) {
			continue
		}
		row, err := snap.Row(r)
		if err != nil {
			return nil, err
		}
		if err := result.AppendRow(row); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Delete rebuilds the table without the rows for which match returns true,
// keeping columns contiguous. Returns the number of removed rows.
func (t *Table) Delete(match func(snap Snapshot, row int) bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{schema: t.schema, cols: t.cols, rows: t.rowsLocked(), version: t.version, rowVersions: t.rowVersions}

	cols := make([]*Column, t.schema.Len())
	for i := range cols {
		field := t.schema.Field(i)
		cols[i] = NewColumn(field.Type, field.Nullable)
	}

	t.version++
	removed := 0
	var rowVersions []uint64
	for r := 0; r < snap.rows; r++ {
		if match(snap, r) {
			removed++
			continue
		}
		for i, col := range cols {
			value, err := snap.Value(r, i)
			if err != nil {
				return 0, err
			}
			if _, err := col.Append(value); err != nil {
				return 0, err
			}
		}
		rowVersions = append(rowVersions, t.version)
	}

	t.cols = cols
	t.rowVersions = rowVersions
	return removed, nil
}

// Update rewrites matching rows through apply, rebuilding column storage so
// concurrent snapshots keep reading the pre-update rows. Returns the number
// of rewritten rows.
func (t *Table) Update(match func(snap Snapshot, row int) bool, apply func(row []core.Value) []core.Value) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{schema: t.schema, cols: t.cols, rows: t.rowsLocked(), version: t.version, rowVersions: t.rowVersions}

	cols := make([]*Column, t.schema.Len())
	for i := range cols {
		field := t.schema.Field(i)
		cols[i] = NewColumn(field.Type, field.Nullable)
	}

	t.version++
	updated := 0
	rowVersions := make([]uint64, 0, snap.rows)
	for r := 0; r < snap.rows; r++ {
		row, err := snap.Row(r)
		if err != nil {
			return 0, err
		}
		if match(snap, r) {
			row = apply(row)
			updated++
		}
		for i := range cols {
			field := t.schema.Field(i)
			stored, ok := field.Accepts(row[i])
			if !ok {
				if row[i].IsNull() {
					return 0, fmt.Errorf("%w: field %s", core.ErrNullViolation, field.Name)
				}
				return 0, fmt.Errorf("%w: %s into %s field %s",
					core.ErrTypeMismatch, row[i], field.Type, field.Name)
			}
			if _, err := cols[i].Append(stored); err != nil {
				return 0, err
			}
		}
		rowVersions = append(rowVersions, t.version)
	}

	t.cols = cols
	t.rowVersions = rowVersions
	return updated, nil
}

func (t *Table) rowsLocked() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}
