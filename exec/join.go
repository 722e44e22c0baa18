package exec

import (
	"fmt"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/sql"
	"github.com/nickyhof/GrainDB/store"
)

// hashJoin joins the accumulated relation against a table snapshot. The
// probe side is the side whose row order the output preserves: the
// accumulated relation for INNER, LEFT and FULL joins, the joined snapshot
// for RIGHT joins. The hash table is always built over the other side;
// picking the smaller side instead would need a sort afterwards to restore
// probe order. Unmatched right rows of FULL joins append after, in
// snapshot order. Null join keys never match, on either side.
func hashJoin(left *relation, rightSnap store.Snapshot, join sql.JoinClause) (*relation, error) {
	qualifier := join.Table
	if join.Alias != "" {
		qualifier = join.Alias
	}

	positions := make([]int, 0, rightSnap.Rows())
	for position := 0; position < rightSnap.Rows(); position++ {
		if rightSnap.Visible(position) {
			positions = append(positions, position)
		}
	}
	right, err := fromSnapshot(rightSnap, qualifier, positions)
	if err != nil {
		return nil, err
	}

	leftKey, rightKey, err := resolveJoinKeys(left, right, join)
	if err != nil {
		return nil, err
	}
	if err := checkJoinKeyTypes(left.fields[leftKey], right.fields[rightKey]); err != nil {
		return nil, err
	}

	fields := make([]relField, 0, len(left.fields)+len(right.fields))
	for _, field := range left.fields {
		if join.Join == sql.RightJoin || join.Join == sql.FullJoin {
			field.nullable = true
		}
		fields = append(fields, field)
	}
	for _, field := range right.fields {
		if join.Join == sql.LeftJoin || join.Join == sql.FullJoin {
			field.nullable = true
		}
		fields = append(fields, field)
	}

	out := &relation{fields: fields}

	if join.Join == sql.RightJoin {
		buckets := keyBuckets(left.rows, leftKey)
		for _, rightRow := range right.rows {
			key := rightRow[rightKey]
			var matches []int
			if !key.IsNull() {
				matches = buckets[key.Key()]
			}
			if len(matches) == 0 {
				out.rows = append(out.rows, padLeft(rightRow, len(left.fields), len(fields)))
				continue
			}
			for _, i := range matches {
				combined := make([]core.Value, 0, len(fields))
				combined = append(combined, left.rows[i]...)
				combined = append(combined, rightRow...)
				out.rows = append(out.rows, combined)
			}
		}
		return out, nil
	}

	buckets := keyBuckets(right.rows, rightKey)
	rightMatched := make([]bool, len(right.rows))
	for _, leftRow := range left.rows {
		key := leftRow[leftKey]
		var matches []int
		if !key.IsNull() {
			matches = buckets[key.Key()]
		}
		if len(matches) == 0 {
			if join.Join == sql.LeftJoin || join.Join == sql.FullJoin {
				out.rows = append(out.rows, padRight(leftRow, len(right.fields)))
			}
			continue
		}
		for _, i := range matches {
			rightMatched[i] = true
			combined := make([]core.Value, 0, len(fields))
			combined = append(combined, leftRow...)
			combined = append(combined, right.rows[i]...)
			out.rows = append(out.rows, combined)
		}
	}

	if join.Join == sql.FullJoin {
		for i, row := range right.rows {
			if rightMatched[i] {
				continue
			}
			out.rows = append(out.rows, padLeft(row, len(left.fields), len(fields)))
		}
	}

	return out, nil
}

func keyBuckets(rows [][]core.Value, key int) map[core.Key][]int {
	buckets := make(map[core.Key][]int, len(rows))
	for i, row := range rows {
		value := row[key]
		if value.IsNull() {
			continue
		}
		buckets[value.Key()] = append(buckets[value.Key()], i)
	}
	return buckets
}

// resolveJoinKeys binds the ON columns. Either side of the equality may
// name either relation, so the pair swaps when the first binding fails.
func resolveJoinKeys(left, right *relation, join sql.JoinClause) (int, int, error) {
	leftKey, leftErr := left.lookup(join.LeftCol)
	rightKey, rightErr := right.lookup(join.RightCol)
	if leftErr == nil && rightErr == nil {
		return leftKey, rightKey, nil
	}

	leftKey, err := left.lookup(join.RightCol)
	if err != nil {
		if leftErr != nil {
			return 0, 0, leftErr
		}
		return 0, 0, rightErr
	}
	rightKey, err = right.lookup(join.LeftCol)
	if err != nil {
		return 0, 0, err
	}
	return leftKey, rightKey, nil
}

func checkJoinKeyTypes(left, right relField) error {
	if left.typ == core.VariantType || right.typ == core.VariantType {
		return nil
	}
	leftString := left.typ == core.StringType
	rightString := right.typ == core.StringType
	if leftString != rightString {
		return fmt.Errorf("%w: %s is %s, %s is %s",
			core.ErrJoinKeyTypeMismatch, left.qualified(), left.typ, right.qualified(), right.typ)
	}
	return nil
}

func padRight(row []core.Value, width int) []core.Value {
	padded := make([]core.Value, 0, len(row)+width)
	padded = append(padded, row...)
	for i := 0; i < width; i++ {
		padded = append(padded, core.Null())
	}
	return padded
}

func padLeft(row []core.Value, width, total int) []core.Value {
	padded := make([]core.Value, width, total)
	for i := range padded {
		padded[i] = core.Null()
	}
	return append(padded, row...)
}
