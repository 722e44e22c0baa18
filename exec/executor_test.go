package exec

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/idx"
	"github.com/nickyhof/GrainDB/sql"
	"github.com/nickyhof/GrainDB/store"
)

type catalog map[string]*store.Table

func (c catalog) Table(name string) (*store.Table, error) {
	table, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTable, name)
	}
	return table, nil
}

func mustSchema(t *testing.T, fields []core.Field) core.Schema {
	t.Helper()
	schema, err := core.NewSchema(fields)
	if err != nil {
		t.Fatalf("NewSchema() error: %v", err)
	}
	return schema
}

func usersTable(t *testing.T) *store.Table {
	t.Helper()
	table := store.New(mustSchema(t, []core.Field{
		{Name: "id", Type: core.IntType},
		{Name: "name", Type: core.StringType},
		{Name: "age", Type: core.IntType, Nullable: true},
		{Name: "city", Type: core.StringType, Nullable: true},
	}))
	rows := [][]core.Value{
		{core.IntValue(1), core.StringValue("Ada"), core.IntValue(36), core.StringValue("London")},
		{core.IntValue(2), core.StringValue("Grace"), core.IntValue(45), core.StringValue("NY")},
		{core.IntValue(3), core.StringValue("Linus"), core.Null(), core.StringValue("Helsinki")},
		{core.IntValue(4), core.StringValue("Barbara"), core.IntValue(36), core.StringValue("NY")},
		{core.IntValue(5), core.StringValue("Edsger"), core.IntValue(70), core.Null()},
	}
	for _, row := range rows {
		if err := table.AppendRow(row); err != nil {
			t.Fatalf("AppendRow() error: %v", err)
		}
	}
	return table
}

func ordersTable(t *testing.T) *store.Table {
	t.Helper()
	table := store.New(mustSchema(t, []core.Field{
		{Name: "order_id", Type: core.IntType},
		{Name: "user_id", Type: core.IntType, Nullable: true},
		{Name: "total", Type: core.FloatType},
	}))
	rows := [][]core.Value{
		{core.IntValue(10), core.IntValue(1), core.FloatValue(25.5)},
		{core.IntValue(11), core.IntValue(2), core.FloatValue(100)},
		{core.IntValue(12), core.IntValue(2), core.FloatValue(9.5)},
		{core.IntValue(13), core.Null(), core.FloatValue(5)},
		{core.IntValue(14), core.IntValue(99), core.FloatValue(1)},
	}
	for _, row := range rows {
		if err := table.AppendRow(row); err != nil {
			t.Fatalf("AppendRow() error: %v", err)
		}
	}
	return table
}

func newTestExecutor(t *testing.T) (*Executor, *idx.Manager) {
	t.Helper()
	indexes := idx.NewManager()
	executor, err := NewExecutor(indexes, 4, 0)
	if err != nil {
		t.Fatalf("NewExecutor() error: %v", err)
	}
	t.Cleanup(executor.Close)
	return executor, indexes
}

func runSelect(t *testing.T, executor *Executor, cat catalog, query string) *Rowset {
	t.Helper()
	result, err := trySelect(executor, cat, query)
	if err != nil {
		t.Fatalf("Select(%q) error: %v", query, err)
	}
	return result
}

func trySelect(executor *Executor, cat catalog, query string) (*Rowset, error) {
	statement, err := sql.NewParser(query).Parse()
	if err != nil {
		return nil, err
	}
	return executor.Select(context.Background(), cat, statement.(sql.SelectStatement))
}

func column(result *Rowset, name string) []core.Value {
	ordinal, ok := result.Schema.Lookup(name)
	if !ok {
		return nil
	}
	values := make([]core.Value, len(result.Rows))
	for i, row := range result.Rows {
		values[i] = row[ordinal]
	}
	return values
}

func TestSelectProjectionAndFilter(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	result := runSelect(t, executor, cat, "SELECT name FROM users WHERE age > 40")
	expected := []core.Value{core.StringValue("Grace"), core.StringValue("Edsger")}
	if !reflect.DeepEqual(column(result, "name"), expected) {
		t.Errorf("names = %v, expected %v", column(result, "name"), expected)
	}
}

func TestSelectNullComparisonsFilterOut(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	// Linus has a null age: neither branch should include the row.
	for _, query := range []string{
		"SELECT id FROM users WHERE age < 40",
		"SELECT id FROM users WHERE age >= 40",
		"SELECT id FROM users WHERE NOT age < 40",
	} {
		result := runSelect(t, executor, cat, query)
		for _, id := range column(result, "id") {
			if id.Equal(core.IntValue(3)) {
				t.Errorf("%q returned the null-age row", query)
			}
		}
	}

	result := runSelect(t, executor, cat, "SELECT id FROM users WHERE age IS NULL")
	if len(result.Rows) != 1 || !result.Rows[0][0].Equal(core.IntValue(3)) {
		t.Errorf("IS NULL returned %v, expected row 3 only", result.Rows)
	}
}

func TestSelectCompoundPredicates(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	tests := []struct {
		query    string
		expected []core.Value
	}{
		{
			query:    "SELECT id FROM users WHERE city = 'NY' AND age = 36",
			expected: []core.Value{core.IntValue(4)},
		},
		{
			query:    "SELECT id FROM users WHERE age = 70 OR city = 'London'",
			expected: []core.Value{core.IntValue(1), core.IntValue(5)},
		},
		{
			query:    "SELECT id FROM users WHERE age BETWEEN 36 AND 45",
			expected: []core.Value{core.IntValue(1), core.IntValue(2), core.IntValue(4)},
		},
		{
			query:    "SELECT id FROM users WHERE city IN ('London', 'Helsinki')",
			expected: []core.Value{core.IntValue(1), core.IntValue(3)},
		},
		{
			query:    "SELECT id FROM users WHERE name LIKE '%a%'",
			expected: []core.Value{core.IntValue(1), core.IntValue(2), core.IntValue(4)},
		},
		{
			query:    "SELECT id FROM users WHERE name LIKE '_da'",
			expected: []core.Value{core.IntValue(1)},
		},
	}

	for _, test := range tests {
		result := runSelect(t, executor, cat, test.query)
		if !reflect.DeepEqual(column(result, "id"), test.expected) {
			t.Errorf("%q ids = %v, expected %v", test.query, column(result, "id"), test.expected)
		}
	}
}

func TestSelectWithIndexesMatchesFullScan(t *testing.T) {
	executor, indexes := newTestExecutor(t)
	users := usersTable(t)
	cat := catalog{"users": users}

	queries := []string{
		"SELECT id FROM users WHERE city = 'NY'",
		"SELECT id FROM users WHERE age > 36",
		"SELECT id FROM users WHERE age >= 36 AND city = 'NY'",
		"SELECT id FROM users WHERE city = 'NY' OR city = 'London'",
		"SELECT id FROM users WHERE city IN ('NY', 'London')",
		"SELECT id FROM users WHERE age BETWEEN 30 AND 50",
	}

	before := make([]*Rowset, len(queries))
	for i, query := range queries {
		before[i] = runSelect(t, executor, cat, query)
	}

	if err := indexes.CreateHashIndex("users", "city", users.Snapshot()); err != nil {
		t.Fatalf("CreateHashIndex() error: %v", err)
	}
	if err := indexes.CreateOrderedIndex("users", "age", users.Snapshot()); err != nil {
		t.Fatalf("CreateOrderedIndex() error: %v", err)
	}

	for i, query := range queries {
		after := runSelect(t, executor, cat, query)
		if !reflect.DeepEqual(after.Rows, before[i].Rows) {
			t.Errorf("%q with indexes = %v, without = %v", query, after.Rows, before[i].Rows)
		}
	}
}

func TestSelectMergedCandidatesKeyOrderDiffers(t *testing.T) {
	// Descending keys put the ordered index's key order at odds with row
	// positions; merging its range candidates with the hash index's must
	// neither drop matches under AND nor duplicate them under OR.
	executor, indexes := newTestExecutor(t)
	table := store.New(mustSchema(t, []core.Field{
		{Name: "a", Type: core.IntType},
		{Name: "b", Type: core.IntType},
	}))
	rows := [][]core.Value{
		{core.IntValue(10), core.IntValue(3)},
		{core.IntValue(5), core.IntValue(3)},
	}
	for _, row := range rows {
		if err := table.AppendRow(row); err != nil {
			t.Fatalf("AppendRow() error: %v", err)
		}
	}
	cat := catalog{"t": table}
	if err := indexes.CreateOrderedIndex("t", "a", table.Snapshot()); err != nil {
		t.Fatalf("CreateOrderedIndex() error: %v", err)
	}
	if err := indexes.CreateHashIndex("t", "b", table.Snapshot()); err != nil {
		t.Fatalf("CreateHashIndex() error: %v", err)
	}

	and := runSelect(t, executor, cat, "SELECT a, b FROM t WHERE a > 0 AND b = 3")
	if !reflect.DeepEqual(and.Rows, rows) {
		t.Errorf("AND rows = %v, expected %v", and.Rows, rows)
	}
	or := runSelect(t, executor, cat, "SELECT a, b FROM t WHERE a > 0 OR b = 3")
	if !reflect.DeepEqual(or.Rows, rows) {
		t.Errorf("OR rows = %v, expected %v", or.Rows, rows)
	}
}

func TestSelectStaleIndexFallsBackToScan(t *testing.T) {
	// A reader racing a mutation can consult indexes that no longer match
	// its snapshot's version. Lagging indexes must not narrow the scan.
	executor, indexes := newTestExecutor(t)
	table := store.New(mustSchema(t, []core.Field{{Name: "id", Type: core.IntType}}))
	for _, id := range []int64{1, 2} {
		if err := table.AppendRow([]core.Value{core.IntValue(id)}); err != nil {
			t.Fatalf("AppendRow() error: %v", err)
		}
	}
	cat := catalog{"t": table}
	if err := indexes.CreateHashIndex("t", "id", table.Snapshot()); err != nil {
		t.Fatalf("CreateHashIndex() error: %v", err)
	}

	// The table moves on without index maintenance.
	if err := table.AppendRow([]core.Value{core.IntValue(3)}); err != nil {
		t.Fatalf("AppendRow() error: %v", err)
	}
	result := runSelect(t, executor, cat, "SELECT id FROM t WHERE id = 3")
	if len(result.Rows) != 1 {
		t.Errorf("post-append rows = %v, expected the unindexed row", result.Rows)
	}

	// A delete renumbers positions; until a rebuild catches up the index
	// still holds the old numbering.
	if _, err := table.Delete(func(snap store.Snapshot, row int) bool {
		value, _ := snap.Value(row, 0)
		return value.Int == 1
	}); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	result = runSelect(t, executor, cat, "SELECT id FROM t WHERE id = 2")
	if len(result.Rows) != 1 || result.Rows[0][0].Int != 2 {
		t.Errorf("post-delete rows = %v, expected [[2]]", result.Rows)
	}
}

func TestSelectJoins(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t), "orders": ordersTable(t)}

	inner := runSelect(t, executor, cat,
		"SELECT u.name, o.total FROM users AS u JOIN orders AS o ON u.id = o.user_id")
	if len(inner.Rows) != 3 {
		t.Fatalf("inner join rows = %d, expected 3", len(inner.Rows))
	}
	expectedNames := []core.Value{core.StringValue("Ada"), core.StringValue("Grace"), core.StringValue("Grace")}
	if !reflect.DeepEqual(column(inner, "name"), expectedNames) {
		t.Errorf("inner join names = %v, expected %v", column(inner, "name"), expectedNames)
	}

	left := runSelect(t, executor, cat,
		"SELECT u.id, o.order_id FROM users AS u LEFT JOIN orders AS o ON u.id = o.user_id")
	if len(left.Rows) != 6 {
		t.Fatalf("left join rows = %d, expected 6", len(left.Rows))
	}
	unmatched := 0
	for _, row := range left.Rows {
		if row[1].IsNull() {
			unmatched++
		}
	}
	if unmatched != 3 {
		t.Errorf("left join null-padded rows = %d, expected 3", unmatched)
	}

	right := runSelect(t, executor, cat,
		"SELECT u.id, o.order_id FROM users AS u RIGHT JOIN orders AS o ON u.id = o.user_id")
	if len(right.Rows) != 5 {
		t.Fatalf("right join rows = %d, expected 5", len(right.Rows))
	}
	// The outer side drives the output order, so rows follow the orders
	// table even where no user matches.
	for i, id := range column(right, "order_id") {
		if !id.Equal(core.IntValue(int64(10 + i))) {
			t.Errorf("right join order_id[%d] = %v, expected %d", i, id, 10+i)
		}
	}

	full := runSelect(t, executor, cat,
		"SELECT u.id, o.order_id FROM users AS u FULL JOIN orders AS o ON u.id = o.user_id")
	if len(full.Rows) != 8 {
		t.Fatalf("full join rows = %d, expected 8", len(full.Rows))
	}
}

func TestSelectJoinNullKeysNeverMatch(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t), "orders": ordersTable(t)}

	result := runSelect(t, executor, cat,
		"SELECT o.order_id FROM orders AS o JOIN users AS u ON o.user_id = u.id")
	for _, id := range column(result, "order_id") {
		if id.Equal(core.IntValue(13)) {
			t.Error("order with null user_id joined to a user")
		}
	}
}

func TestSelectJoinKeyTypeMismatch(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t), "orders": ordersTable(t)}

	_, err := trySelect(executor, cat,
		"SELECT * FROM users AS u JOIN orders AS o ON u.name = o.user_id")
	if !errors.Is(err, core.ErrJoinKeyTypeMismatch) {
		t.Errorf("error = %v, expected ErrJoinKeyTypeMismatch", err)
	}
}

func TestSelectAggregates(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	result := runSelect(t, executor, cat,
		"SELECT COUNT(*), COUNT(age), SUM(age), AVG(age), MIN(age), MAX(age) FROM users")
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d, expected 1", len(result.Rows))
	}
	row := result.Rows[0]
	expected := []core.Value{
		core.IntValue(5),
		core.IntValue(4),
		core.IntValue(187),
		core.FloatValue(46.75),
		core.IntValue(36),
		core.IntValue(70),
	}
	if !reflect.DeepEqual(row, expected) {
		t.Errorf("aggregates = %v, expected %v", row, expected)
	}
}

func TestSelectAggregatesEmptyInput(t *testing.T) {
	executor, _ := newTestExecutor(t)
	empty := store.New(mustSchema(t, []core.Field{{Name: "n", Type: core.IntType, Nullable: true}}))
	cat := catalog{"empty": empty}

	result := runSelect(t, executor, cat, "SELECT COUNT(*), SUM(n), MIN(n) FROM empty")
	expected := []core.Value{core.IntValue(0), core.Null(), core.Null()}
	if !reflect.DeepEqual(result.Rows[0], expected) {
		t.Errorf("aggregates over empty table = %v, expected %v", result.Rows[0], expected)
	}
}

func TestSelectGroupByWithHaving(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	result := runSelect(t, executor, cat,
		"SELECT city, COUNT(*) AS members FROM users GROUP BY city HAVING members > 1")
	if len(result.Rows) != 1 {
		t.Fatalf("groups = %v, expected only NY", result.Rows)
	}
	if !result.Rows[0][0].Equal(core.StringValue("NY")) || !result.Rows[0][1].Equal(core.IntValue(2)) {
		t.Errorf("group = %v, expected [NY 2]", result.Rows[0])
	}

	// The call form filters the same way, with or without an alias in the
	// select list.
	for _, query := range []string{
		"SELECT city, COUNT(*) FROM users GROUP BY city HAVING COUNT(*) > 1",
		"SELECT city, COUNT(*) AS members FROM users GROUP BY city HAVING COUNT(*) > 1",
	} {
		result := runSelect(t, executor, cat, query)
		if len(result.Rows) != 1 || !result.Rows[0][0].Equal(core.StringValue("NY")) {
			t.Errorf("%q groups = %v, expected only NY", query, result.Rows)
		}
	}
}

func TestSelectGroupByNullIsItsOwnGroup(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	result := runSelect(t, executor, cat, "SELECT city, COUNT(*) FROM users GROUP BY city")
	if len(result.Rows) != 4 {
		t.Fatalf("groups = %d, expected 4 (three cities and one null)", len(result.Rows))
	}
	foundNull := false
	for _, row := range result.Rows {
		if row[0].IsNull() {
			foundNull = true
			if !row[1].Equal(core.IntValue(1)) {
				t.Errorf("null group count = %v, expected 1", row[1])
			}
		}
	}
	if !foundNull {
		t.Error("no null group in result")
	}
}

func TestSelectNonGroupedColumnRejected(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	_, err := trySelect(executor, cat, "SELECT name, COUNT(*) FROM users GROUP BY city")
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("error = %v, expected ErrInvalidArgument", err)
	}
}

func TestSumOverflowDegradesToFloat(t *testing.T) {
	executor, _ := newTestExecutor(t)
	table := store.New(mustSchema(t, []core.Field{{Name: "n", Type: core.IntType}}))
	huge := int64(1) << 62
	for i := 0; i < 4; i++ {
		if err := table.AppendRow([]core.Value{core.IntValue(huge)}); err != nil {
			t.Fatalf("AppendRow() error: %v", err)
		}
	}
	cat := catalog{"big": table}

	result := runSelect(t, executor, cat, "SELECT SUM(n) FROM big")
	sum := result.Rows[0][0]
	if sum.Kind != core.FloatKind {
		t.Fatalf("sum kind = %v, expected float after overflow", sum.Kind)
	}
	if sum.Float != float64(huge)*4 {
		t.Errorf("sum = %v, expected %v", sum.Float, float64(huge)*4)
	}
}

func TestSelectDistinct(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	result := runSelect(t, executor, cat, "SELECT DISTINCT age FROM users")
	// 36, 45, null, 70; duplicate 36 collapses and nulls collapse together.
	if len(result.Rows) != 4 {
		t.Errorf("distinct ages = %v, expected 4 rows", result.Rows)
	}
}

func TestSelectOrderByNullsLast(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	asc := runSelect(t, executor, cat, "SELECT age FROM users ORDER BY age")
	ages := column(asc, "age")
	if !ages[len(ages)-1].IsNull() {
		t.Errorf("ascending order = %v, expected null last", ages)
	}
	for i := 0; i+2 < len(ages); i++ {
		if cmp, ok := ages[i].Compare(ages[i+1]); ok && cmp > 0 {
			t.Errorf("ascending order violated at %d: %v", i, ages)
		}
	}

	desc := runSelect(t, executor, cat, "SELECT age FROM users ORDER BY age DESC")
	ages = column(desc, "age")
	if !ages[len(ages)-1].IsNull() {
		t.Errorf("descending order = %v, expected null still last", ages)
	}
	if !ages[0].Equal(core.IntValue(70)) {
		t.Errorf("descending order = %v, expected 70 first", ages)
	}
}

func TestSelectOrderByIsStable(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	result := runSelect(t, executor, cat, "SELECT id, age FROM users WHERE age = 36 ORDER BY age")
	expected := []core.Value{core.IntValue(1), core.IntValue(4)}
	if !reflect.DeepEqual(column(result, "id"), expected) {
		t.Errorf("tie order = %v, expected insertion order %v", column(result, "id"), expected)
	}
}

func TestSelectLimitOffset(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	result := runSelect(t, executor, cat, "SELECT id FROM users ORDER BY id LIMIT 2 OFFSET 1")
	expected := []core.Value{core.IntValue(2), core.IntValue(3)}
	if !reflect.DeepEqual(column(result, "id"), expected) {
		t.Errorf("ids = %v, expected %v", column(result, "id"), expected)
	}

	past := runSelect(t, executor, cat, "SELECT id FROM users LIMIT 10 OFFSET 100")
	if len(past.Rows) != 0 {
		t.Errorf("offset past end returned %d rows", len(past.Rows))
	}
}

func TestSelectUnknownColumnAndTable(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	if _, err := trySelect(executor, cat, "SELECT nope FROM users"); !errors.Is(err, core.ErrUnknownColumn) {
		t.Errorf("error = %v, expected ErrUnknownColumn", err)
	}
	if _, err := trySelect(executor, cat, "SELECT * FROM nope"); !errors.Is(err, core.ErrUnknownTable) {
		t.Errorf("error = %v, expected ErrUnknownTable", err)
	}
	if _, err := trySelect(executor, cat, "SELECT * FROM users WHERE age = 'old'"); !errors.Is(err, core.ErrTypeMismatch) {
		t.Errorf("error = %v, expected ErrTypeMismatch", err)
	}
}

func TestSelectCancelledContext(t *testing.T) {
	executor, _ := newTestExecutor(t)
	cat := catalog{"users": usersTable(t)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	statement, err := sql.NewParser("SELECT * FROM users WHERE age > 0").Parse()
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	_, err = executor.Select(ctx, cat, statement.(sql.SelectStatement))
	if !errors.Is(err, core.ErrCancelled) {
		t.Errorf("error = %v, expected ErrCancelled", err)
	}
}

func TestParallelScanPreservesOrder(t *testing.T) {
	executor, _ := newTestExecutor(t)
	executor.chunkSize = 64

	table := store.New(mustSchema(t, []core.Field{{Name: "n", Type: core.IntType}}))
	for i := 0; i < 1000; i++ {
		if err := table.AppendRow([]core.Value{core.IntValue(int64(i))}); err != nil {
			t.Fatalf("AppendRow() error: %v", err)
		}
	}
	cat := catalog{"seq": table}

	result := runSelect(t, executor, cat, "SELECT n FROM seq WHERE n >= 100")
	if len(result.Rows) != 900 {
		t.Fatalf("rows = %d, expected 900", len(result.Rows))
	}
	for i, row := range result.Rows {
		if !row[0].Equal(core.IntValue(int64(100 + i))) {
			t.Fatalf("row %d = %v, order not preserved", i, row[0])
		}
	}
}
