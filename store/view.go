package store

import (
	"fmt"

	"github.com/nickyhof/GrainDB/core"
)

// View is a zero-copy projection over a table snapshot. It borrows the
// underlying column storage rather than copying it, so a view must not
// outlive the snapshot's columns: once the base table rebuilds its storage
// (delete, update, drop column) the view keeps reading the old rows, and is
// only as current as the snapshot it was taken from.
type View struct {
	snap     Snapshot
	schema   core.Schema
	ordinals []int
}

// ViewOf projects the named columns of a snapshot without copying data.
func ViewOf(snap Snapshot, fieldNames []string) (*View, error) {
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

	return &View{snap: snap, schema: schema, ordinals: ordinals}, nil
}

func (v *View) Schema() core.Schema { return v.schema }

func (v *View) Rows() int { return v.snap.rows }

func (v *View) Value(row, col int) (core.Value, error) {
	if col < 0 || col >= len(v.ordinals) {
		return core.Null(), fmt.Errorf("%w: column %d", core.ErrOutOfRange, col)
	}
	return v.snap.Value(row, v.ordinals[col])
}

// Materialize copies the view into an owning table.
func (v *View) Materialize() (*Table, error) {
	result := New(v.schema)
	row := make([]core.Value, len(v.ordinals))
	for r := 0; r < v.snap.rows; r++ {
		for i := range v.ordinals {
			value, err := v.Value(r, i)
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
