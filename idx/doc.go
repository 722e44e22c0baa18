// Package idx provides GrainDB's secondary indexes: hash indexes for
// equality lookups, ordered (balanced-tree) indexes for range queries, and
// composite indexes answering multi-column equality by intersection.
//
// A Manager keeps every index consistent with its backing table. The engine
// calls OnInsert inside the table's exclusive write section and Rebuild after
// storage-rewriting mutations (delete, update, schema evolution), so a
// lookup never returns a stale row position.
//
//	im := idx.NewManager()
//	im.CreateHashIndex("users", "name", table.Snapshot())
//	positions, ok := im.LookupEqual("users", "name", core.StringValue("ada"))
//
// Null values are never indexed; IS NULL predicates always scan.
package idx
