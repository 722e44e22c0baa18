package store

import (
	"errors"
	"testing"

	"github.com/nickyhof/GrainDB/core"
)

func testSchema(t *testing.T) core.Schema {
	t.Helper()
	schema, err := core.NewSchema([]core.Field{
		{Name: "id", Type: core.IntType},
		{Name: "tag", Type: core.StringType, Nullable: true},
		{Name: "score", Type: core.FloatType, Nullable: true},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return schema
}

func mustAppend(t *testing.T, table *Table, values ...core.Value) {
	t.Helper()
	if err := table.AppendRow(values); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
}

func TestColumnAppendGet(t *testing.T) {
	col := NewColumn(core.IntType, true)

	pos, err := col.Append(core.IntValue(42))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if pos != 0 {
		t.Errorf("expected position 0, got %d", pos)
	}

	if _, err := col.Append(core.Null()); err != nil {
		t.Fatalf("Append null: %v", err)
	}

	value, err := col.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value.Int != 42 {
		t.Errorf("expected 42, got %s", value)
	}

	if !col.IsNull(1) {
		t.Error("expected position 1 to be null")
	}

	if _, err := col.Get(2); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestColumnNullability(t *testing.T) {
	col := NewColumn(core.StringType, false)
	if _, err := col.Append(core.Null()); !errors.Is(err, core.ErrNullViolation) {
		t.Errorf("expected ErrNullViolation, got %v", err)
	}

	if _, err := col.Append(core.StringValue("a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := col.SetNull(0); !errors.Is(err, core.ErrNullViolation) {
		t.Errorf("expected ErrNullViolation from SetNull, got %v", err)
	}
}

func TestAppendRowValidation(t *testing.T) {
	table := New(testSchema(t))

	tests := []struct {
		name   string
		values []core.Value
		want   error
	}{
		{
			"arity too short",
			[]core.Value{core.IntValue(1)},
			core.ErrSchemaMismatch,
		},
		{
			"null into non-nullable",
			[]core.Value{core.Null(), core.StringValue("a"), core.Null()},
			core.ErrNullViolation,
		},
		{
			"string into int",
			[]core.Value{core.StringValue("x"), core.StringValue("a"), core.Null()},
			core.ErrTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := table.AppendRow(tt.values); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if table.Rows() != 0 {
		t.Errorf("rejected rows must not change row count, got %d", table.Rows())
	}

	// Int literals widen into float fields.
	mustAppend(t, table, core.IntValue(1), core.Null(), core.IntValue(3))
	snap := table.Snapshot()
	value, _ := snap.Value(0, 2)
	if value.Kind != core.FloatKind || value.Float != 3 {
		t.Errorf("expected widened float 3, got %s", value)
	}
}

func TestProjectIdempotent(t *testing.T) {
	table := New(testSchema(t))
	mustAppend(t, table, core.IntValue(1), core.StringValue("a"), core.FloatValue(0.5))
	mustAppend(t, table, core.IntValue(2), core.Null(), core.Null())

	once, err := table.Project([]string{"tag", "id"})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	twice, err := once.Project([]string{"tag", "id"})
	if err != nil {
		t.Fatalf("Project twice: %v", err)
	}

	if once.Rows() != 2 || twice.Rows() != 2 {
		t.Fatalf("projection changed row count: %d, %d", once.Rows(), twice.Rows())
	}

	a, b := once.Snapshot(), twice.Snapshot()
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			va, _ := a.Value(r, c)
			vb, _ := b.Value(r, c)
			if va != vb {
				t.Errorf("row %d col %d: %s != %s", r, c, va, vb)
			}
		}
	}

	if _, err := table.Project([]string{"missing"}); !errors.Is(err, core.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestFilterSubsetAndIdempotent(t *testing.T) {
	table := New(testSchema(t))
	for i := 1; i <= 10; i++ {
		mustAppend(t, table, core.IntValue(int64(i)), core.StringValue("t"), core.FloatValue(float64(i)))
	}

	keep := func(snap Snapshot, row int) bool {
		value, _ := snap.Value(row, 0)
		return value.Int > 5
	}

	once, err := table.Filter(keep)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if once.Rows() != 5 {
		t.Fatalf("expected 5 rows, got %d", once.Rows())
	}

	snap := once.Snapshot()
	for r := 0; r < once.Rows(); r++ {
		value, _ := snap.Value(r, 0)
		if value.Int <= 5 {
			t.Errorf("retained row violates predicate: %s", value)
		}
	}

	twice, err := once.Filter(keep)
	if err != nil {
		t.Fatalf("Filter twice: %v", err)
	}
	if twice.Rows() != once.Rows() {
		t.Errorf("filter not idempotent: %d != %d", twice.Rows(), once.Rows())
	}
}

func TestDeleteRebuilds(t *testing.T) {
	table := New(testSchema(t))
	for i := 1; i <= 4; i++ {
		mustAppend(t, table, core.IntValue(int64(i)), core.StringValue("t"), core.Null())
	}

	before := table.Snapshot()

	removed, err := table.Delete(func(snap Snapshot, row int) bool {
		value, _ := snap.Value(row, 0)
		return value.Int%2 == 0
	})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if table.Rows() != 2 {
		t.Errorf("expected 2 remaining, got %d", table.Rows())
	}

	// A snapshot taken before the delete still reads the old rows.
	if before.Rows() != 4 {
		t.Errorf("pre-delete snapshot shrank to %d rows", before.Rows())
	}
	value, _ := before.Value(3, 0)
	if value.Int != 4 {
		t.Errorf("pre-delete snapshot lost row: %s", value)
	}
}

func TestUpdateRewritesMatches(t *testing.T) {
	table := New(testSchema(t))
	mustAppend(t, table, core.IntValue(1), core.StringValue("a"), core.Null())
	mustAppend(t, table, core.IntValue(2), core.StringValue("b"), core.Null())

	updated, err := table.Update(
		func(snap Snapshot, row int) bool {
			value, _ := snap.Value(row, 0)
			return value.Int == 2
		},
		func(row []core.Value) []core.Value {
			row[1] = core.StringValue("bb")
			return row
		},
	)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated != 1 {
		t.Errorf("expected 1 updated, got %d", updated)
	}

	snap := table.Snapshot()
	value, _ := snap.Value(1, 1)
	if value.Str != "bb" {
		t.Errorf("expected bb, got %s", value)
	}
	value, _ = snap.Value(0, 1)
	if value.Str != "a" {
		t.Errorf("unmatched row changed: %s", value)
	}
}

func TestSchemaEvolution(t *testing.T) {
	table := New(testSchema(t))
	mustAppend(t, table, core.IntValue(1), core.StringValue("a"), core.Null())

	if err := table.AddColumn("flag", core.VariantType, core.Null()); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if table.Schema().Len() != 4 {
		t.Fatalf("expected 4 fields, got %d", table.Schema().Len())
	}

	snap := table.Snapshot()
	value, err := snap.Value(0, 3)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if !value.IsNull() {
		t.Errorf("new column must backfill null, got %s", value)
	}

	mustAppend(t, table, core.IntValue(2), core.Null(), core.Null(), core.StringValue("mixed"))

	if err := table.DropColumn("score"); err != nil {
		t.Fatalf("DropColumn: %v", err)
	}
	if _, ok := table.Schema().Lookup("score"); ok {
		t.Error("score still present after drop")
	}
	if table.Rows() != 2 {
		t.Errorf("row count changed by drop: %d", table.Rows())
	}

	if err := table.DropColumn("missing"); !errors.Is(err, core.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestSnapshotIgnoresLaterAppends(t *testing.T) {
	table := New(testSchema(t))
	mustAppend(t, table, core.IntValue(1), core.Null(), core.Null())

	snap := table.Snapshot()
	mustAppend(t, table, core.IntValue(2), core.Null(), core.Null())

	if snap.Rows() != 1 {
		t.Errorf("snapshot row count moved: %d", snap.Rows())
	}
	if snap.Visible(1) {
		t.Error("row appended after snapshot must not be visible")
	}
	if table.Rows() != 2 {
		t.Errorf("table row count: %d", table.Rows())
	}
}

func TestZeroCopyView(t *testing.T) {
	table := New(testSchema(t))
	mustAppend(t, table, core.IntValue(7), core.StringValue("x"), core.Null())

	view, err := ViewOf(table.Snapshot(), []string{"tag"})
	if err != nil {
		t.Fatalf("ViewOf: %v", err)
	}
	if view.Rows() != 1 {
		t.Fatalf("view rows: %d", view.Rows())
	}

	value, err := view.Value(0, 0)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value.Str != "x" {
		t.Errorf("expected x, got %s", value)
	}

	owned, err := view.Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if owned.Rows() != 1 || owned.Schema().Len() != 1 {
		t.Errorf("materialized view shape: %d rows, %d fields", owned.Rows(), owned.Schema().Len())
	}
}
