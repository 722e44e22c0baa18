package exec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/store"
)

// Rowset is the materialized result of a query.
type Rowset struct {
	Schema core.Schema
	Rows   [][]core.Value
}

// relField is a column of an intermediate relation. The qualifier is the
// table name or alias the column came from, so predicates can reference
// either "age" or "u.age".
type relField struct {
	name      string
	qualifier string
	typ       core.ColumnType
	nullable  bool
}

func (f relField) qualified() string {
	if f.qualifier == "" {
		return f.name
	}
	return f.qualifier + "." + f.name
}

// relation is the row-oriented intermediate form flowing between query
// stages. The base scan materializes visible rows out of the columnar
// snapshot; joins, grouping and sorting operate on the relation.
type relation struct {
	fields []relField
	rows   [][]core.Value
}

func fromSnapshot(snap store.Snapshot, qualifier string, positions []int) (*relation, error) {
	schema := snap.Schema()
	fields := make([]relField, schema.Len())
	for i := 0; i < schema.Len(); i++ {
		field := schema.Field(i)
		fields[i] = relField{name: field.Name, qualifier: qualifier, typ: field.Type, nullable: field.Nullable}
	}

	rows := make([][]core.Value, 0, len(positions))
	for _, position := range positions {
		row, err := snap.Row(position)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return &relation{fields: fields, rows: rows}, nil
}

// lookup resolves a possibly qualified column reference. A qualified name
// must match a field's qualifier exactly; a bare name must be unambiguous
// across the relation.
func (r *relation) lookup(name string) (int, error) {
	if qualifier, bare, ok := strings.Cut(name, "."); ok {
		for i, field := range r.fields {
			if field.qualifier == qualifier && field.name == bare {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: %s", core.ErrUnknownColumn, name)
	}

	found := -1
	for i, field := range r.fields {
		if field.name == name {
			if found >= 0 {
				return 0, fmt.Errorf("%w: ambiguous column %s", core.ErrUnknownColumn, name)
			}
			found = i
		}
	}
	if found < 0 {
		return 0, fmt.Errorf("%w: %s", core.ErrUnknownColumn, name)
	}
	return found, nil
}

func (r *relation) project(columns []string) (*relation, error) {
	ordinals := make([]int, len(columns))
	fields := make([]relField, len(columns))
	for i, column := range columns {
		ordinal, err := r.lookup(column)
		if err != nil {
			return nil, err
		}
		ordinals[i] = ordinal
		fields[i] = r.fields[ordinal]
	}

	rows := make([][]core.Value, len(r.rows))
	for i, row := range r.rows {
		projected := make([]core.Value, len(ordinals))
		for j, ordinal := range ordinals {
			projected[j] = row[ordinal]
		}
		rows[i] = projected
	}
	return &relation{fields: fields, rows: rows}, nil
}

// rowset converts the relation into the public result form. Duplicate
// output names are disambiguated with their qualifier.
func (r *relation) rowset() (*Rowset, error) {
	names := make(map[string]int, len(r.fields))
	for _, field := range r.fields {
		names[field.name]++
	}

	fields := make([]core.Field, len(r.fields))
	for i, field := range r.fields {
		name := field.name
		if names[field.name] > 1 {
			name = field.qualified()
		}
		fields[i] = core.Field{Name: name, Type: field.typ, Nullable: field.nullable}
	}

	schema, err := core.NewSchema(fields)
	if err != nil {
		return nil, err
	}
	return &Rowset{Schema: schema, Rows: r.rows}, nil
}

// tupleKey builds a comparable encoding of a value tuple for grouping and
// duplicate elimination. Integral floats collapse onto their integer form
// and nulls encode as a distinct marker, so 1 and 1.0 group together and
// null keys fall into a single group.
func tupleKey(values []core.Value) string {
	var builder strings.Builder
	for _, value := range values {
		key := value.Key()
		switch key.Kind {
		case core.NullKind:
			builder.WriteByte('n')
		case core.IntKind:
			builder.WriteByte('i')
			builder.WriteString(strconv.FormatInt(key.Int, 10))
		case core.FloatKind:
			builder.WriteByte('f')
			builder.WriteString(strconv.FormatFloat(key.Float, 'g', -1, 64))
		case core.StringKind:
			builder.WriteByte('s')
			builder.WriteString(strconv.Itoa(len(key.Str)))
			builder.WriteByte(':')
			builder.WriteString(key.Str)
		}
		builder.WriteByte('|')
	}
	return builder.String()
}
