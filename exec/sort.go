package exec

import (
	"fmt"
	"sort"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/sql"
)

// orderBy sorts the relation in place. The sort is stable and nulls sort
// after every non-null value regardless of direction, so ties and
// incomparable pairs keep their incoming order.
func orderBy(rel *relation, clauses []sql.OrderByClause) error {
	if len(clauses) == 0 {
		return nil
	}

	ordinals := make([]int, len(clauses))
	for i, clause := range clauses {
		ordinal, err := rel.lookup(clause.Column)
		if err != nil {
			return err
		}
		ordinals[i] = ordinal
	}

	sort.SliceStable(rel.rows, func(i, j int) bool {
		for k, clause := range clauses {
			a, b := rel.rows[i][ordinals[k]], rel.rows[j][ordinals[k]]
			switch {
			case a.IsNull() && b.IsNull():
				continue
			case a.IsNull():
				return false
			case b.IsNull():
				return true
			}
			cmp, ok := a.Compare(b)
			if !ok || cmp == 0 {
				continue
			}
			if clause.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

// distinct removes duplicate rows, keeping the first occurrence. Two rows
// are duplicates when every column pair is equal under grouping rules, so
// null equals null and 1 equals 1.0.
func distinct(rel *relation) *relation {
	seen := make(map[string]struct{}, len(rel.rows))
	kept := rel.rows[:0:0]
	for _, row := range rel.rows {
		key := tupleKey(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	rel.rows = kept
	return rel
}

func limitOffset(rel *relation, limit, offset int) error {
	if limit < -1 || offset < -1 {
		return fmt.Errorf("%w: negative LIMIT or OFFSET", core.ErrInvalidArgument)
	}
	if offset > 0 {
		if offset >= len(rel.rows) {
			rel.rows = nil
		} else {
			rel.rows = rel.rows[offset:]
		}
	}
	if limit >= 0 && limit < len(rel.rows) {
		rel.rows = rel.rows[:limit]
	}
	return nil
}
