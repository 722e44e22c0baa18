package idx

import (
	"fmt"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/store"
)

// CompositeIndex answers multi-column equality lookups with one hash
// sub-index per column, intersecting the candidate sets.
type CompositeIndex struct {
	columns []string
	subs    []*HashIndex
}

func NewCompositeIndex(columns []string, snap store.Snapshot) (*CompositeIndex, error) {
	composite := &CompositeIndex{
		columns: append([]string(nil), columns...),
		subs:    make([]*HashIndex, len(columns)),
	}
	for i, column := range columns {
		composite.subs[i] = NewHashIndex(column)
	}

	if err := composite.Rebuild(snap); err != nil {
		return nil, err
	}
	return composite, nil
}

func (c *CompositeIndex) Columns() []string { return append([]string(nil), c.columns...) }

// Matches reports whether the lookup columns are exactly this composite's
// columns, in any order.
func (c *CompositeIndex) Matches(columns []string) bool {
	if len(columns) != len(c.columns) {
		return false
	}
	for _, column := range columns {
		found := false
		for _, own := range c.columns {
			if own == column {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c *CompositeIndex) OnInsert(schema core.Schema, row []core.Value, position int) {
	for i, column := range c.columns {
		if ord, ok := schema.Lookup(column); ok && ord < len(row) {
			c.subs[i].OnInsert(row[ord], position)
		}
	}
}

// LookupEqual intersects each sub-index's candidates for its value. The
// caller's columns may arrive in any order; they are matched to sub-indexes
// by name.
func (c *CompositeIndex) LookupEqual(columns []string, values []core.Value) []int {
	if len(values) != len(c.subs) || len(columns) != len(values) {
		return nil
	}

	ordered := make([]core.Value, len(c.subs))
	for i, own := range c.columns {
		found := false
		for j, column := range columns {
			if column == own {
				ordered[i] = values[j]
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}

	var candidates []int
	for i, sub := range c.subs {
		positions := sub.LookupEqual(ordered[i])
		if i == 0 {
			candidates = positions
			continue
		}
		candidates = intersect(candidates, positions)
		if len(candidates) == 0 {
			return nil
		}
	}
	return candidates
}

func (c *CompositeIndex) Rebuild(snap store.Snapshot) error {
	ordinals := make([]int, len(c.columns))
	for i, column := range c.columns {
		ord, ok := snap.Schema().Lookup(column)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownColumn, column)
		}
		ordinals[i] = ord
	}

	for _, sub := range c.subs {
		sub.clear()
	}
	for r := 0; r < snap.Rows(); r++ {
		for i, sub := range c.subs {
			value, err := snap.Value(r, ordinals[i])
			if err != nil {
				return err
			}
			sub.OnInsert(value, r)
		}
	}
	return nil
}

// intersect merges two ascending position lists.
func intersect(a, b []int) []int {
	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
