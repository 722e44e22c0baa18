package store

import (
	"fmt"

	"github.com/nickyhof/GrainDB/core"
)

// AddColumn evolves the schema with a new trailing field and backfills every
// existing row with def (or null when def is the null value, which forces the
// field nullable).
func (t *Table) AddColumn(name string, typ core.ColumnType, def core.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	field := core.Field{Name: name, Type: typ, Nullable: def.IsNull()}
	stored, ok := field.Accepts(def)
	if !ok {
		return fmt.Errorf("%w: default %s for %s column %s",
			core.ErrTypeMismatch, def, typ, name)
	}

	schema, err := t.schema.WithField(field)
	if err != nil {
		return err
	}

	col := NewColumn(field.Type, field.Nullable)
	for r := 0; r < t.rowsLocked(); r++ {
		if _, err := col.Append(stored); err != nil {
			return err
		}
	}

	t.version++
	t.schema = schema
	t.cols = append(append([]*Column(nil), t.cols...), col)
	return nil
}

// DropColumn evolves the schema without the named field and discards its
// column storage.
func (t *Table) DropColumn(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ord, ok := t.schema.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownColumn, name)
	}

	schema, err := t.schema.WithoutField(name)
	if err != nil {
		return err
	}

	cols := append([]*Column(nil), t.cols[:ord]...)
	cols = append(cols, t.cols[ord+1:]...)

	t.version++
	t.schema = schema
	t.cols = cols
	return nil
}
