// Package GrainDB provides an embedded columnar SQL database engine.
//
// GrainDB keeps tables in columnar storage, executes a SQL subset against
// consistent snapshots, and persists durable state as Parquet snapshots
// committed to a Git object store plus a write-ahead log. Every checkpoint
// is a commit, so the full history stays addressable for point-in-time
// loads.
//
// # Quick Start
//
// Create an in-memory database:
//
//	persistence, _ := ps.NewMemoryPersistence(core.Identity{Name: "App", Email: "app@example.com"})
//	instance := GrainDB.Open(persistence)
//	engine, _ := instance.Engine()
//	defer engine.Close()
//
//	engine.Execute(ctx, "CREATE TABLE users (id INT, name STRING)")
//	engine.Execute(ctx, "INSERT INTO users (id, name) VALUES (1, 'Alice')")
//
//	result, _ := engine.Execute(ctx, "SELECT * FROM users")
//	result.Display()
//
// # Supported SQL
//
// GrainDB supports a subset of SQL including:
//   - CREATE/DROP TABLE, ALTER TABLE ADD/DROP COLUMN
//   - CREATE/DROP INDEX (hash, ordered, composite)
//   - INSERT, SELECT, UPDATE, DELETE
//   - WHERE with comparison operators, IN, BETWEEN, LIKE, IS NULL
//   - ORDER BY, LIMIT, OFFSET
//   - Aggregate functions: SUM, AVG, MIN, MAX, COUNT
//   - GROUP BY, HAVING
//   - JOINs: INNER, LEFT, RIGHT, FULL
//   - DISTINCT
package GrainDB
