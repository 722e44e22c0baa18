// Package db provides the SQL execution engine for GrainDB.
//
// The Engine type is the main entry point for executing SQL statements.
// It parses SQL, executes queries against the columnar catalog, and
// returns results.
//
// # Engine Usage
//
//	engine, err := db.NewEngine(persistence)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	result, err := engine.Execute(ctx, "SELECT * FROM users")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result.Display()
//
// # Result Types
//
// There are two result types:
//   - QueryResult: Returned by SELECT statements
//   - CommitResult: Returned by INSERT, UPDATE, DELETE, CREATE, DROP, ALTER
//
// QueryResult contains columns, data rows, and execution metrics.
// CommitResult contains counts of affected objects.
//
// # Durability
//
// Every mutation is appended to the write-ahead log before it touches
// in-memory state. Checkpoint persists a full copy of every table and
// truncates the log; NewEngine recovers from the latest checkpoint and
// replays whatever the log holds beyond it.
package db
