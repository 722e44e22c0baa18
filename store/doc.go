// Package store provides GrainDB's columnar storage: typed columns with
// validity bitmaps, and tables binding equal-length columns under a schema.
//
// # Columns
//
// A Column stores one field contiguously for all rows, with a bitmap marking
// null positions. Sequential scans and numeric aggregates walk the backing
// slice directly.
//
// # Tables
//
//	schema, _ := core.NewSchema([]core.Field{
//	    {Name: "id", Type: core.IntType},
//	    {Name: "tag", Type: core.StringType, Nullable: true},
//	})
//	table := store.New(schema)
//	table.AppendRow([]core.Value{core.IntValue(1), core.StringValue("a")})
//
// Reads go through snapshots: Snapshot captures the row count and column
// handles in effect at call time, so a long-running query never observes a
// concurrent mutation. Deletes rebuild column storage rather than removing
// rows in place, keeping columns contiguous and existing snapshots valid.
//
// # Schema evolution
//
// AddColumn and DropColumn derive a new schema and migrate column storage;
// added columns backfill with the given default (all-null when no default).
package store
