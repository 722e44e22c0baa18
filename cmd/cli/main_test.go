package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nickyhof/GrainDB"
	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/db"
	"github.com/nickyhof/GrainDB/ps"
)

func setupTestCLI(t *testing.T) *CLI {
	t.Helper()
	persistence, err := ps.NewMemoryPersistence(core.Identity{Name: "test", Email: "test@test.com"})
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	t.Cleanup(func() { persistence.Close() })

	instance := GrainDB.Open(persistence)
	engine, err := instance.Engine()
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &CLI{engine: engine, instance: instance}
}

func TestCLICreateTableAndInsert(t *testing.T) {
	cli := setupTestCLI(t)

	if _, err := cli.engine.Execute(context.Background(), "CREATE TABLE users (id INT, name STRING)"); err != nil {
		t.Fatalf("CREATE TABLE failed: %v", err)
	}
	if _, err := cli.engine.Execute(context.Background(), "INSERT INTO users (id, name) VALUES (1, 'Alice')"); err != nil {
		t.Fatalf("INSERT failed: %v", err)
	}

	tables := cli.engine.Tables()
	if len(tables) != 1 || tables[0] != "users" {
		t.Errorf("Expected [users], got %v", tables)
	}
}

func TestCLIGetPrompt(t *testing.T) {
	cli := setupTestCLI(t)

	prompt := cli.getPrompt(false)
	if !strings.Contains(prompt, "graindb>") {
		t.Errorf("Expected graindb prompt, got %q", prompt)
	}

	continuation := cli.getPrompt(true)
	if !strings.Contains(continuation, "...>") {
		t.Errorf("Expected continuation prompt, got %q", continuation)
	}
}

func TestCLIHandleCommand(t *testing.T) {
	cli := setupTestCLI(t)

	cases := []struct {
		input string
		keep  bool
	}{
		{".help", true},
		{".tables", true},
		{".checkpoints", true},
		{".version", true},
		{".nonsense", true},
		{".quit", false},
		{".exit", false},
	}
	for _, tc := range cases {
		if got := cli.handleCommand(tc.input); got != tc.keep {
			t.Errorf("handleCommand(%q) = %v, expected %v", tc.input, got, tc.keep)
		}
	}
}

func TestVersionVariable(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestSplitStatements(t *testing.T) {
	cases := []struct {
		name    string
		content string
		count   int
	}{
		{"single", "SELECT id FROM users;", 1},
		{"multiple", "CREATE TABLE t (id INT); INSERT INTO t (id) VALUES (1); SELECT id FROM t;", 3},
		{"no trailing semicolon", "SELECT id FROM users", 1},
		{"semicolon in string", "INSERT INTO t (name) VALUES ('a;b');", 1},
		{"comments", "-- setup\nCREATE TABLE t (id INT);\n-- data\nINSERT INTO t (id) VALUES (1);", 2},
		{"empty", "   \n  ", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			statements := splitStatements(tc.content)
			if len(statements) != tc.count {
				t.Errorf("splitStatements(%q) = %d statements, expected %d: %v",
					tc.content, len(statements), tc.count, statements)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 50, "short"},
		{"tabs\tand\nnewlines", 50, "tabs and newlines"},
		{strings.Repeat("x", 60), 50, strings.Repeat("x", 47) + "..."},
	}
	for _, tc := range cases {
		if got := truncate(tc.input, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, expected %q", tc.input, tc.max, got, tc.want)
		}
	}
}

func TestImportFile(t *testing.T) {
	cli := setupTestCLI(t)

	script := strings.Join([]string{
		"CREATE TABLE items (id INT, label STRING);",
		"INSERT INTO items (id, label) VALUES (1, 'one'), (2, 'two');",
		"SELECT id FROM items;",
	}, "\n")

	path := filepath.Join(t.TempDir(), "import.sql")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	if err := cli.importFile(path); err != nil {
		t.Fatalf("importFile failed: %v", err)
	}

	result, err := cli.engine.Execute(context.Background(), "SELECT COUNT(*) FROM items")
	if err != nil {
		t.Fatalf("Verification query failed: %v", err)
	}
	if count := result.(db.QueryResult).Rows[0][0].Int; count != 2 {
		t.Errorf("Expected 2 imported items, got %d", count)
	}
}

func TestImportFileNotFound(t *testing.T) {
	cli := setupTestCLI(t)

	if err := cli.importFile("/nonexistent/file.sql"); err == nil {
		t.Error("Expected error for missing file")
	}
}
