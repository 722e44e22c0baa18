package store

import (
	"fmt"

	"github.com/nickyhof/GrainDB/core"
)

// Column is contiguous typed storage for one field across all rows, plus a
// validity bitmap. Length always equals the owning table's row count.
//
// Append may reallocate backing storage; callers must not hold element
// addresses across appends.
type Column struct {
	typ      core.ColumnType
	nullable bool
	length   int
	nulls    []uint64

	ints   []int64
	floats []float64
	strs   []string
	vars   []core.Value
}

func NewColumn(typ core.ColumnType, nullable bool) *Column {
	return &Column{typ: typ, nullable: nullable}
}

func (c *Column) Type() core.ColumnType { return c.typ }

func (c *Column) Nullable() bool { return c.nullable }

func (c *Column) Len() int { return c.length }

// Append stores value at the next position and returns that position. The
// value must already match the column type (the table layer coerces and
// type-checks); nulls require a nullable column.
func (c *Column) Append(value core.Value) (int, error) {
	if value.IsNull() {
		if !c.nullable {
			return 0, core.ErrNullViolation
		}
		c.appendZero()
		c.markNull(c.length)
		c.length++
		return c.length - 1, nil
	}

	switch c.typ {
	case core.IntType:
		if value.Kind != core.IntKind {
			return 0, fmt.Errorf("%w: %s into INT column", core.ErrTypeMismatch, value)
		}
		c.ints = append(c.ints, value.Int)
	case core.FloatType:
		if value.Kind != core.FloatKind {
			return 0, fmt.Errorf("%w: %s into FLOAT column", core.ErrTypeMismatch, value)
		}
		c.floats = append(c.floats, value.Float)
	case core.StringType:
		if value.Kind != core.StringKind {
			return 0, fmt.Errorf("%w: %s into STRING column", core.ErrTypeMismatch, value)
		}
		c.strs = append(c.strs, value.Str)
	case core.VariantType:
		c.vars = append(c.vars, value)
	}

	c.length++
	return c.length - 1, nil
}

// Get returns the value at position, or null when the validity bit is unset.
func (c *Column) Get(position int) (core.Value, error) {
	if position < 0 || position >= c.length {
		return core.Null(), fmt.Errorf("%w: %d of %d", core.ErrOutOfRange, position, c.length)
	}

	if c.isNull(position) {
		return core.Null(), nil
	}

	switch c.typ {
	case core.IntType:
		return core.IntValue(c.ints[position]), nil
	case core.FloatType:
		return core.FloatValue(c.floats[position]), nil
	case core.StringType:
		return core.StringValue(c.strs[position]), nil
	default:
		return c.vars[position], nil
	}
}

// SetNull marks the position null without disturbing neighbouring storage.
func (c *Column) SetNull(position int) error {
	if position < 0 || position >= c.length {
		return fmt.Errorf("%w: %d of %d", core.ErrOutOfRange, position, c.length)
	}
	if !c.nullable {
		return core.ErrNullViolation
	}

	c.markNull(position)
	return nil
}

func (c *Column) IsNull(position int) bool {
	if position < 0 || position >= c.length {
		return false
	}
	return c.isNull(position)
}

func (c *Column) appendZero() {
	switch c.typ {
	case core.IntType:
		c.ints = append(c.ints, 0)
	case core.FloatType:
		c.floats = append(c.floats, 0)
	case core.StringType:
		c.strs = append(c.strs, "")
	case core.VariantType:
		c.vars = append(c.vars, core.Null())
	}
}

func (c *Column) markNull(position int) {
	word := position / 64
	for word >= len(c.nulls) {
		c.nulls = append(c.nulls, 0)
	}
	c.nulls[word] |= 1 << (position % 64)
}

func (c *Column) isNull(position int) bool {
	word := position / 64
	if word >= len(c.nulls) {
		return false
	}
	return c.nulls[word]&(1<<(position%64)) != 0
}
