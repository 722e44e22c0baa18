package GrainDB

import (
	"context"
	"testing"
	"time"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/db"
	"github.com/nickyhof/GrainDB/ps"
)

// TestFunc is the signature for test functions that work with any persistence
type TestFunc func(t *testing.T, engine *db.Engine)

// runWithBothPersistence runs a test function with both memory and file persistence
func runWithBothPersistence(t *testing.T, testFunc TestFunc) {
	identity := core.Identity{Name: "test", Email: "test@test.com"}

	t.Run("Memory", func(t *testing.T) {
		persistence, err := ps.NewMemoryPersistence(identity)
		if err != nil {
			t.Fatalf("Failed to initialize memory persistence: %v", err)
		}
		t.Cleanup(func() { persistence.Close() })

		engine, err := Open(persistence).Engine()
		if err != nil {
			t.Fatalf("Failed to open engine: %v", err)
		}
		t.Cleanup(engine.Close)
		testFunc(t, engine)
	})

	t.Run("File", func(t *testing.T) {
		persistence, err := ps.NewFilePersistence(t.TempDir(), identity, ps.SyncAlways)
		if err != nil {
			t.Fatalf("Failed to initialize file persistence: %v", err)
		}
		t.Cleanup(func() { persistence.Close() })

		engine, err := Open(persistence).Engine()
		if err != nil {
			t.Fatalf("Failed to open engine: %v", err)
		}
		t.Cleanup(engine.Close)
		testFunc(t, engine)
	})
}

func exec(t *testing.T, engine *db.Engine, query string) db.Result {
	t.Helper()
	result, err := engine.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute(%q) failed: %v", query, err)
	}
	return result
}

func query(t *testing.T, engine *db.Engine, sql string) db.QueryResult {
	t.Helper()
	return exec(t, engine, sql).(db.QueryResult)
}

// TestIntegrationWorkflow tests a complete database workflow
func TestIntegrationWorkflow(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		result := exec(t, engine, "CREATE TABLE employees (id INT, name STRING, department STRING, salary INT)")
		if result.(db.CommitResult).TablesCreated != 1 {
			t.Error("Expected 1 table created")
		}
		exec(t, engine, "CREATE TABLE departments (id INT, name STRING)")

		employees := []string{
			"INSERT INTO employees (id, name, department, salary) VALUES (1, 'Alice', 'Engineering', 80000)",
			"INSERT INTO employees (id, name, department, salary) VALUES (2, 'Bob', 'Engineering', 75000)",
			"INSERT INTO employees (id, name, department, salary) VALUES (3, 'Charlie', 'Sales', 60000)",
			"INSERT INTO employees (id, name, department, salary) VALUES (4, 'Diana', 'Marketing', 65000)",
			"INSERT INTO employees (id, name, department, salary) VALUES (5, 'Eve', 'Engineering', 90000)",
		}
		for _, statement := range employees {
			exec(t, engine, statement)
		}
		departments := []string{
			"INSERT INTO departments (id, name) VALUES (1, 'Engineering')",
			"INSERT INTO departments (id, name) VALUES (2, 'Sales')",
			"INSERT INTO departments (id, name) VALUES (3, 'Marketing')",
		}
		for _, statement := range departments {
			exec(t, engine, statement)
		}

		qr := query(t, engine, "SELECT COUNT(*) FROM employees")
		if qr.Rows[0][0].Int != 5 {
			t.Errorf("Expected 5 employees, got %s", qr.Rows[0][0])
		}

		qr = query(t, engine, "SELECT name FROM employees ORDER BY salary DESC LIMIT 3")
		if len(qr.Rows) != 3 {
			t.Fatalf("Expected 3 records with LIMIT 3, got %d", len(qr.Rows))
		}
		if qr.Rows[0][0].Str != "Eve" {
			t.Errorf("Expected Eve with the top salary, got %s", qr.Rows[0][0])
		}

		qr = query(t, engine, "SELECT id FROM employees WHERE salary > 70000")
		if len(qr.Rows) != 3 {
			t.Errorf("Expected 3 employees with salary > 70000, got %d", len(qr.Rows))
		}

		exec(t, engine, "UPDATE employees SET salary = 95000 WHERE id = 5")
		qr = query(t, engine, "SELECT salary FROM employees WHERE id = 5")
		if qr.Rows[0][0].Int != 95000 {
			t.Errorf("Expected updated salary 95000, got %s", qr.Rows[0][0])
		}

		exec(t, engine, "DELETE FROM employees WHERE id = 3")
		qr = query(t, engine, "SELECT COUNT(*) FROM employees")
		if qr.Rows[0][0].Int != 4 {
			t.Errorf("Expected 4 employees after delete, got %s", qr.Rows[0][0])
		}
	})
}

// TestIntegrationAggregates tests aggregate functions and grouping
func TestIntegrationAggregates(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		exec(t, engine, "CREATE TABLE orders (id INT, customer STRING, amount INT, region STRING)")

		orders := []string{
			"INSERT INTO orders (id, customer, amount, region) VALUES (1, 'Acme', 1000, 'East')",
			"INSERT INTO orders (id, customer, amount, region) VALUES (2, 'Beta', 2000, 'West')",
			"INSERT INTO orders (id, customer, amount, region) VALUES (3, 'Acme', 1500, 'East')",
			"INSERT INTO orders (id, customer, amount, region) VALUES (4, 'Gamma', 3000, 'West')",
			"INSERT INTO orders (id, customer, amount, region) VALUES (5, 'Beta', 500, 'East')",
		}
		for _, statement := range orders {
			exec(t, engine, statement)
		}

		qr := query(t, engine, "SELECT SUM(amount) FROM orders")
		if qr.Rows[0][0].Int != 8000 {
			t.Errorf("Expected SUM of 8000, got %s", qr.Rows[0][0])
		}

		qr = query(t, engine, "SELECT AVG(amount) FROM orders")
		if qr.Rows[0][0].Float != 1600 {
			t.Errorf("Expected AVG of 1600, got %s", qr.Rows[0][0])
		}

		qr = query(t, engine, "SELECT MIN(amount) FROM orders")
		if qr.Rows[0][0].Int != 500 {
			t.Errorf("Expected MIN of 500, got %s", qr.Rows[0][0])
		}

		qr = query(t, engine, "SELECT MAX(amount) FROM orders")
		if qr.Rows[0][0].Int != 3000 {
			t.Errorf("Expected MAX of 3000, got %s", qr.Rows[0][0])
		}

		qr = query(t, engine, "SELECT region, SUM(amount) AS total FROM orders GROUP BY region ORDER BY total DESC")
		if len(qr.Rows) != 2 {
			t.Fatalf("Expected 2 regions, got %d", len(qr.Rows))
		}
		if qr.Rows[0][0].Str != "West" || qr.Rows[0][1].Int != 5000 {
			t.Errorf("Expected West total 5000 first, got %v", qr.Rows[0])
		}
		if qr.Rows[1][0].Str != "East" || qr.Rows[1][1].Int != 3000 {
			t.Errorf("Expected East total 3000 second, got %v", qr.Rows[1])
		}

		qr = query(t, engine, "SELECT customer, COUNT(*) AS orders FROM orders GROUP BY customer HAVING orders > 1")
		if len(qr.Rows) != 2 {
			t.Errorf("Expected 2 repeat customers, got %d", len(qr.Rows))
		}
	})
}

// TestIntegrationJoins tests joins between two tables
func TestIntegrationJoins(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		exec(t, engine, "CREATE TABLE users (id INT, name STRING)")
		exec(t, engine, "CREATE TABLE orders (id INT, user_id INT NULL, amount INT)")

		exec(t, engine, "INSERT INTO users (id, name) VALUES (1, 'Alice'), (2, 'Bob'), (3, 'Charlie')")
		exec(t, engine, "INSERT INTO orders (id, user_id, amount) VALUES (1, 1, 100), (2, 1, 200), (3, 3, 50), (4, NULL, 75)")

		qr := query(t, engine, "SELECT u.name, o.amount FROM users u JOIN orders o ON u.id = o.user_id")
		if len(qr.Rows) != 3 {
			t.Errorf("Expected 3 joined rows, got %d", len(qr.Rows))
		}

		qr = query(t, engine, "SELECT u.name, o.amount FROM users u LEFT JOIN orders o ON u.id = o.user_id")
		if len(qr.Rows) != 4 {
			t.Errorf("Expected 4 rows with left join, got %d", len(qr.Rows))
		}
		unmatched := 0
		for _, row := range qr.Rows {
			if row[1].IsNull() {
				unmatched++
			}
		}
		if unmatched != 1 {
			t.Errorf("Expected 1 null-padded row for Bob, got %d", unmatched)
		}
	})
}

// TestIntegrationRecovery tests that state survives an engine restart
func TestIntegrationRecovery(t *testing.T) {
	identity := core.Identity{Name: "test", Email: "test@test.com"}
	baseDir := t.TempDir()

	persistence, err := ps.NewFilePersistence(baseDir, identity, ps.SyncAlways)
	if err != nil {
		t.Fatalf("Failed to initialize file persistence: %v", err)
	}

	engine, err := Open(persistence).Engine()
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	exec(t, engine, "CREATE TABLE events (id INT, kind STRING)")
	exec(t, engine, "INSERT INTO events (id, kind) VALUES (1, 'start'), (2, 'stop')")

	if _, err := engine.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	exec(t, engine, "INSERT INTO events (id, kind) VALUES (3, 'start')")

	engine.Close()
	if err := persistence.Close(); err != nil {
		t.Fatalf("Failed to close persistence: %v", err)
	}

	reopened, err := ps.NewFilePersistence(baseDir, identity, ps.SyncAlways)
	if err != nil {
		t.Fatalf("Failed to reopen file persistence: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	instance := Open(reopened)
	restarted, err := instance.Engine()
	if err != nil {
		t.Fatalf("Failed to reopen engine: %v", err)
	}
	t.Cleanup(restarted.Close)

	qr := query(t, restarted, "SELECT COUNT(*) FROM events")
	if qr.Rows[0][0].Int != 3 {
		t.Errorf("Expected 3 events after restart, got %s", qr.Rows[0][0])
	}

	checkpoints, err := instance.Checkpoints()
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(checkpoints) != 1 {
		t.Fatalf("Expected 1 checkpoint, got %d", len(checkpoints))
	}

	state, err := instance.StateAt(time.Now())
	if err != nil {
		t.Fatalf("StateAt failed: %v", err)
	}
	if state.Tables["events"] == nil || state.Tables["events"].Rows() != 2 {
		t.Error("Expected the checkpointed state to hold 2 events")
	}
}
