package exec

import (
	"context"
	"sync"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/idx"
	"github.com/nickyhof/GrainDB/sql"
	"github.com/nickyhof/GrainDB/store"
)

// scan returns the visible row positions of the snapshot that satisfy the
// predicate, in ascending order. Index lookups narrow the candidate set
// when the predicate shape allows it; every candidate is still verified
// against the full predicate, so index consultation never changes results.
func (executor *Executor) scan(ctx context.Context, table string, snap store.Snapshot, qualifier string, where sql.Expr) ([]int, error) {
	if where == nil {
		return executor.scanAll(ctx, snap, nil)
	}

	shape := &relation{}
	schema := snap.Schema()
	for i := 0; i < schema.Len(); i++ {
		field := schema.Field(i)
		shape.fields = append(shape.fields, relField{name: field.Name, qualifier: qualifier, typ: field.Type, nullable: field.Nullable})
	}
	pred, err := compilePredicate(where, shape)
	if err != nil {
		return nil, err
	}

	// Index positions only describe this snapshot while the indexes still
	// reflect its table version. The version is re-read after the lookups:
	// versions never decrease, so a match on both sides means no rebuild
	// renumbered positions in between.
	if version, ok := executor.indexes.Version(table); ok && version == snap.Version() {
		if candidates, ok := executor.indexCandidates(table, where); ok {
			if again, ok := executor.indexes.Version(table); ok && again == snap.Version() {
				return verify(ctx, snap, candidates, pred)
			}
		}
	}
	return executor.scanAll(ctx, snap, pred)
}

// indexCandidates walks the predicate looking for index-answerable shapes.
// Equality and range leaves map onto single-column indexes, AND intersects
// candidate sets and can satisfy a composite index, OR unions when both
// branches are answerable. A false return means scan everything.
func (executor *Executor) indexCandidates(table string, expr sql.Expr) ([]int, bool) {
	switch node := expr.(type) {
	case sql.Comparison:
		return executor.comparisonCandidates(table, node)

	case sql.BetweenExpr:
		low := idx.Bound{Value: &node.Low, Inclusive: true}
		high := idx.Bound{Value: &node.High, Inclusive: true}
		return executor.indexes.LookupRange(table, bareColumn(node.Column), low, high)

	case sql.InExpr:
		if node.Negated {
			return nil, false
		}
		column := bareColumn(node.Column)
		var union []int
		for _, value := range node.Values {
			if value.IsNull() {
				continue
			}
			positions, ok := executor.indexes.LookupEqual(table, column, value)
			if !ok {
				return nil, false
			}
			union = mergeUnion(union, positions)
		}
		return union, true

	case sql.BinaryExpr:
		if node.Op == sql.LogicalAnd {
			if columns, values := collectEqualities(node); len(columns) > 1 {
				if positions, ok := executor.indexes.LookupComposite(table, columns, values); ok {
					return positions, true
				}
			}
			left, leftOK := executor.indexCandidates(table, node.Left)
			right, rightOK := executor.indexCandidates(table, node.Right)
			switch {
			case leftOK && rightOK:
				return mergeIntersect(left, right), true
			case leftOK:
				return left, true
			case rightOK:
				return right, true
			}
			return nil, false
		}
		left, leftOK := executor.indexCandidates(table, node.Left)
		right, rightOK := executor.indexCandidates(table, node.Right)
		if leftOK && rightOK {
			return mergeUnion(left, right), true
		}
		return nil, false

	default:
		return nil, false
	}
}

func (executor *Executor) comparisonCandidates(table string, node sql.Comparison) ([]int, bool) {
	if node.Value.IsNull() {
		return nil, false
	}
	column := bareColumn(node.Column)
	switch node.Op {
	case sql.EqualsOp:
		return executor.indexes.LookupEqual(table, column, node.Value)
	case sql.LessThanOp:
		return executor.indexes.LookupRange(table, column, idx.Bound{}, idx.Bound{Value: &node.Value})
	case sql.LessThanOrEqualOp:
		return executor.indexes.LookupRange(table, column, idx.Bound{}, idx.Bound{Value: &node.Value, Inclusive: true})
	case sql.GreaterThanOp:
		return executor.indexes.LookupRange(table, column, idx.Bound{Value: &node.Value}, idx.Bound{})
	case sql.GreaterThanOrEqualOp:
		return executor.indexes.LookupRange(table, column, idx.Bound{Value: &node.Value, Inclusive: true}, idx.Bound{})
	default:
		return nil, false
	}
}

// collectEqualities gathers AND-connected equality comparisons for
// composite index matching.
func collectEqualities(expr sql.Expr) ([]string, []core.Value) {
	switch node := expr.(type) {
	case sql.BinaryExpr:
		if node.Op != sql.LogicalAnd {
			return nil, nil
		}
		leftColumns, leftValues := collectEqualities(node.Left)
		rightColumns, rightValues := collectEqualities(node.Right)
		return append(leftColumns, rightColumns...), append(leftValues, rightValues...)
	case sql.Comparison:
		if node.Op == sql.EqualsOp && !node.Value.IsNull() {
			return []string{bareColumn(node.Column)}, []core.Value{node.Value}
		}
	}
	return nil, nil
}

// Indexes are registered under bare column names; predicates may qualify.
func bareColumn(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

func verify(ctx context.Context, snap store.Snapshot, candidates []int, pred *predicate) ([]int, error) {
	matched := make([]int, 0, len(candidates))
	for i, position := range candidates {
		if i%1024 == 0 {
			if err := cancelled(ctx); err != nil {
				return nil, err
			}
		}
		if position >= snap.Rows() || !snap.Visible(position) {
			continue
		}
		row, err := snap.Row(position)
		if err != nil {
			return nil, err
		}
		if pred.eval(row) == triTrue {
			matched = append(matched, position)
		}
	}
	return matched, nil
}

// scanAll evaluates the predicate over every visible row. Large snapshots
// split into chunks that run on the worker pool; chunk results concatenate
// in chunk order, so position order is preserved.
func (executor *Executor) scanAll(ctx context.Context, snap store.Snapshot, pred *predicate) ([]int, error) {
	rows := snap.Rows()
	if rows <= executor.chunkSize || executor.pool == nil {
		return scanRange(ctx, snap, 0, rows, pred)
	}

	chunks := (rows + executor.chunkSize - 1) / executor.chunkSize
	results := make([][]int, chunks)
	errs := make([]error, chunks)

	var waitGroup sync.WaitGroup
	for chunk := 0; chunk < chunks; chunk++ {
		start := chunk * executor.chunkSize
		end := min(start+executor.chunkSize, rows)
		waitGroup.Add(1)
		task := func(chunk, start, end int) func() {
			return func() {
				defer waitGroup.Done()
				results[chunk], errs[chunk] = scanRange(ctx, snap, start, end, pred)
			}
		}(chunk, start, end)
		if err := executor.pool.Submit(task); err != nil {
			task()
		}
	}
	waitGroup.Wait()

	total := 0
	for chunk := 0; chunk < chunks; chunk++ {
		if errs[chunk] != nil {
			return nil, errs[chunk]
		}
		total += len(results[chunk])
	}
	positions := make([]int, 0, total)
	for _, result := range results {
		positions = append(positions, result...)
	}
	return positions, nil
}

func scanRange(ctx context.Context, snap store.Snapshot, start, end int, pred *predicate) ([]int, error) {
	var positions []int
	for position := start; position < end; position++ {
		if (position-start)%1024 == 0 {
			if err := cancelled(ctx); err != nil {
				return nil, err
			}
		}
		if !snap.Visible(position) {
			continue
		}
		if pred == nil {
			positions = append(positions, position)
			continue
		}
		row, err := snap.Row(position)
		if err != nil {
			return nil, err
		}
		if pred.eval(row) == triTrue {
			positions = append(positions, position)
		}
	}
	return positions, nil
}

func mergeUnion(a, b []int) []int {
	merged := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			merged = append(merged, a[i])
			i++
		case a[i] > b[j]:
			merged = append(merged, b[j])
			j++
		default:
			merged = append(merged, a[i])
			i++
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}

func mergeIntersect(a, b []int) []int {
	var merged []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			merged = append(merged, a[i])
			i++
			j++
		}
	}
	return merged
}
