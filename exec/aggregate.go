package exec

import (
	"fmt"
	"math"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/sql"
)

// aggregate reduces the relation to one row per group. Without GROUP BY
// the whole input is a single group, which exists even when the input is
// empty, so a global COUNT over an empty table yields 0.
func aggregate(rel *relation, statement sql.SelectStatement) (*relation, error) {
	groupOrdinals := make([]int, len(statement.GroupBy))
	for i, column := range statement.GroupBy {
		ordinal, err := rel.lookup(column)
		if err != nil {
			return nil, err
		}
		groupOrdinals[i] = ordinal
	}

	// Plain output columns must be grouping keys.
	outOrdinals := groupOrdinals
	if len(statement.Columns) > 0 {
		outOrdinals = make([]int, len(statement.Columns))
		for i, column := range statement.Columns {
			ordinal, err := rel.lookup(column)
			if err != nil {
				return nil, err
			}
			grouped := false
			for _, groupOrdinal := range groupOrdinals {
				if ordinal == groupOrdinal {
					grouped = true
					break
				}
			}
			if !grouped {
				return nil, fmt.Errorf("%w: column %s is neither aggregated nor grouped", core.ErrInvalidArgument, column)
			}
			outOrdinals[i] = ordinal
		}
	}

	specs := make([]aggSpec, len(statement.Aggregates))
	for i, agg := range statement.Aggregates {
		spec, err := compileAggregate(agg, rel)
		if err != nil {
			return nil, err
		}
		specs[i] = spec
	}

	type group struct {
		keys []core.Value
		accs []accumulator
	}
	groups := make(map[string]*group)
	var order []*group

	newGroup := func(row []core.Value) *group {
		g := &group{accs: make([]accumulator, len(specs))}
		if row != nil {
			g.keys = make([]core.Value, len(groupOrdinals))
			for i, ordinal := range groupOrdinals {
				g.keys[i] = row[ordinal]
			}
		}
		for i, spec := range specs {
			g.accs[i] = spec.newAccumulator()
		}
		return g
	}

	if len(groupOrdinals) == 0 {
		g := newGroup(nil)
		groups[""] = g
		order = append(order, g)
	}

	keyBuf := make([]core.Value, len(groupOrdinals))
	for _, row := range rel.rows {
		for i, ordinal := range groupOrdinals {
			keyBuf[i] = row[ordinal]
		}
		key := tupleKey(keyBuf)
		g, ok := groups[key]
		if !ok {
			g = newGroup(row)
			groups[key] = g
			order = append(order, g)
		}
		for i, spec := range specs {
			g.accs[i].add(row, spec.ordinal)
		}
	}

	out := &relation{}
	for _, ordinal := range outOrdinals {
		out.fields = append(out.fields, rel.fields[ordinal])
	}
	for i, spec := range specs {
		out.fields = append(out.fields, spec.field(rel, statement.Aggregates[i]))
	}

	for _, g := range order {
		row := make([]core.Value, 0, len(out.fields))
		for _, ordinal := range outOrdinals {
			for i, groupOrdinal := range groupOrdinals {
				if ordinal == groupOrdinal {
					row = append(row, g.keys[i])
					break
				}
			}
		}
		for _, acc := range g.accs {
			row = append(row, acc.result())
		}
		out.rows = append(out.rows, row)
	}

	if statement.Having != nil {
		pred, err := compilePredicate(resolveHavingAliases(statement.Having, statement.Aggregates), out)
		if err != nil {
			return nil, err
		}
		kept := out.rows[:0:0]
		for _, row := range out.rows {
			if pred.eval(row) == triTrue {
				kept = append(kept, row)
			}
		}
		out.rows = kept
	}

	return out, nil
}

// resolveHavingAliases rewrites aggregate call references onto the aliases
// their output columns actually carry, so HAVING COUNT(*) works whether or
// not the select list renamed the count.
func resolveHavingAliases(expr sql.Expr, aggregates []sql.AggregateExpr) sql.Expr {
	names := make(map[string]string)
	for _, agg := range aggregates {
		if agg.Alias != "" {
			names[agg.Name()] = agg.Alias
		}
	}
	if len(names) == 0 {
		return expr
	}
	return renameColumns(expr, names)
}

func renameColumns(expr sql.Expr, names map[string]string) sql.Expr {
	rename := func(column string) string {
		if alias, ok := names[column]; ok {
			return alias
		}
		return column
	}
	switch node := expr.(type) {
	case sql.Comparison:
		node.Column = rename(node.Column)
		return node
	case sql.BetweenExpr:
		node.Column = rename(node.Column)
		return node
	case sql.InExpr:
		node.Column = rename(node.Column)
		return node
	case sql.NullTest:
		node.Column = rename(node.Column)
		return node
	case sql.NotExpr:
		node.Expr = renameColumns(node.Expr, names)
		return node
	case sql.BinaryExpr:
		node.Left = renameColumns(node.Left, names)
		node.Right = renameColumns(node.Right, names)
		return node
	}
	return expr
}

type aggSpec struct {
	fn      sql.AggregateFunc
	ordinal int // -1 for COUNT(*)
	typ     core.ColumnType
}

func compileAggregate(agg sql.AggregateExpr, rel *relation) (aggSpec, error) {
	spec := aggSpec{fn: agg.Func, ordinal: -1}
	if agg.Column == "" {
		if agg.Func != sql.CountFunc {
			return spec, fmt.Errorf("%w: %s requires a column", core.ErrInvalidArgument, agg.Func)
		}
		return spec, nil
	}

	ordinal, err := rel.lookup(agg.Column)
	if err != nil {
		return spec, err
	}
	spec.ordinal = ordinal
	spec.typ = rel.fields[ordinal].typ

	if agg.Func == sql.SumFunc || agg.Func == sql.AvgFunc {
		if spec.typ == core.StringType {
			return spec, fmt.Errorf("%w: %s over string column %s", core.ErrTypeMismatch, agg.Func, agg.Column)
		}
	}
	return spec, nil
}

func (spec aggSpec) newAccumulator() accumulator {
	switch spec.fn {
	case sql.CountFunc:
		return &countAcc{}
	case sql.SumFunc:
		return &sumAcc{}
	case sql.AvgFunc:
		return &avgAcc{}
	case sql.MinFunc:
		return &extremeAcc{want: -1}
	default:
		return &extremeAcc{want: 1}
	}
}

func (spec aggSpec) field(rel *relation, agg sql.AggregateExpr) relField {
	name := agg.Alias
	if name == "" {
		name = agg.Name()
	}

	field := relField{name: name, nullable: true}
	switch spec.fn {
	case sql.CountFunc:
		field.typ = core.IntType
		field.nullable = false
	case sql.AvgFunc:
		field.typ = core.FloatType
	case sql.SumFunc:
		if spec.typ == core.IntType {
			field.typ = core.IntType
		} else {
			field.typ = core.FloatType
		}
	default:
		field.typ = spec.typ
	}
	return field
}

type accumulator interface {
	add(row []core.Value, ordinal int)
	result() core.Value
}

type countAcc struct {
	count int64
}

func (acc *countAcc) add(row []core.Value, ordinal int) {
	if ordinal < 0 || !row[ordinal].IsNull() {
		acc.count++
	}
}

func (acc *countAcc) result() core.Value { return core.IntValue(acc.count) }

// sumAcc sums integers exactly until the running total would overflow,
// then degrades to float64 for the remainder.
type sumAcc struct {
	intSum   int64
	floatSum float64
	isFloat  bool
	seen     bool
}

func (acc *sumAcc) add(row []core.Value, ordinal int) {
	value := row[ordinal]
	if value.IsNull() {
		return
	}
	acc.seen = true

	if !acc.isFloat && value.Kind == core.IntKind {
		sum := acc.intSum + value.Int
		if (value.Int > 0 && sum < acc.intSum) || (value.Int < 0 && sum > acc.intSum) {
			acc.isFloat = true
			acc.floatSum = float64(acc.intSum) + float64(value.Int)
			return
		}
		acc.intSum = sum
		return
	}
	if !acc.isFloat {
		acc.isFloat = true
		acc.floatSum = float64(acc.intSum)
	}
	acc.floatSum += value.AsFloat()
}

func (acc *sumAcc) result() core.Value {
	if !acc.seen {
		return core.Null()
	}
	if acc.isFloat {
		return core.FloatValue(acc.floatSum)
	}
	return core.IntValue(acc.intSum)
}

type avgAcc struct {
	sum   float64
	count int64
}

func (acc *avgAcc) add(row []core.Value, ordinal int) {
	value := row[ordinal]
	if value.IsNull() {
		return
	}
	if value.Kind == core.StringKind {
		return
	}
	acc.sum += value.AsFloat()
	acc.count++
}

func (acc *avgAcc) result() core.Value {
	if acc.count == 0 {
		return core.Null()
	}
	avg := acc.sum / float64(acc.count)
	if math.IsNaN(avg) {
		return core.Null()
	}
	return core.FloatValue(avg)
}

type extremeAcc struct {
	want int // -1 keeps the smaller value, 1 the larger
	best core.Value
	seen bool
}

func (acc *extremeAcc) add(row []core.Value, ordinal int) {
	value := row[ordinal]
	if value.IsNull() {
		return
	}
	if !acc.seen {
		acc.best = value
		acc.seen = true
		return
	}
	if cmp, ok := value.Compare(acc.best); ok && cmp == acc.want {
		acc.best = value
	}
}

func (acc *extremeAcc) result() core.Value {
	if !acc.seen {
		return core.Null()
	}
	return acc.best
}
