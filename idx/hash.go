package idx

import (
	"sort"

	"github.com/nickyhof/GrainDB/core"
)

// HashIndex maps column values to the row positions holding them. Equality
// lookups only; nulls are never indexed, so IS NULL predicates always scan.
type HashIndex struct {
	column  string
	entries map[core.Key][]int
}

func NewHashIndex(column string) *HashIndex {
	return &HashIndex{column: column, entries: make(map[core.Key][]int)}
}

func (idx *HashIndex) Column() string { return idx.column }

func (idx *HashIndex) Len() int {
	n := 0
	for _, positions := range idx.entries {
		n += len(positions)
	}
	return n
}

func (idx *HashIndex) OnInsert(value core.Value, position int) {
	if value.IsNull() {
		return
	}
	key := value.Key()
	idx.entries[key] = append(idx.entries[key], position)
}

func (idx *HashIndex) OnDelete(value core.Value, position int) {
	if value.IsNull() {
		return
	}
	key := value.Key()
	positions := idx.entries[key]
	for i, p := range positions {
		if p == position {
			idx.entries[key] = append(positions[:i], positions[i+1:]...)
			if len(idx.entries[key]) == 0 {
				delete(idx.entries, key)
			}
			return
		}
	}
}

// LookupEqual returns the positions holding value, in ascending order.
func (idx *HashIndex) LookupEqual(value core.Value) []int {
	if value.IsNull() {
		return nil
	}
	positions := append([]int(nil), idx.entries[value.Key()]...)
	sort.Ints(positions)
	return positions
}

func (idx *HashIndex) clear() {
	idx.entries = make(map[core.Key][]int)
}
