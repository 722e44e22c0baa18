package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/viper"

	"github.com/nickyhof/GrainDB"
	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/db"
	"github.com/nickyhof/GrainDB/ps"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// CLI holds the CLI state
type CLI struct {
	engine      *db.Engine
	instance    *GrainDB.Instance
	line        *liner.State
	historyFile string
}

func loadConfig() {
	viper.SetDefault("baseDir", "")
	viper.SetDefault("name", "GrainDB")
	viper.SetDefault("email", "cli@graindb.local")
	viper.SetDefault("walSync", "always")
	viper.SetDefault("scanChunkSize", 0)

	viper.SetConfigName("graindb")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetEnvPrefix("graindb")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func main() {
	loadConfig()

	baseDir := flag.String("baseDir", viper.GetString("baseDir"), "Base directory for the database")
	sqlFile := flag.String("sqlFile", "", "SQL file to execute (non-interactive)")
	userName := flag.String("name", viper.GetString("name"), "Author name for checkpoint commits")
	userEmail := flag.String("email", viper.GetString("email"), "Author email for checkpoint commits")
	walSync := flag.String("walSync", viper.GetString("walSync"), "Write-ahead log sync mode: always or never")
	chunkSize := flag.Int("scanChunkSize", viper.GetInt("scanChunkSize"), "Rows per parallel scan chunk (0 for default)")
	flag.Parse()

	printBanner()

	identity := core.Identity{Name: *userName, Email: *userEmail}
	syncMode, err := ps.ParseSyncMode(*walSync)
	if err != nil {
		fmt.Printf("%sError: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}

	var persistence *ps.Persistence
	if *baseDir == "" {
		fmt.Printf("%sUsing memory persistence%s\n", SuccessColor, ResetColor)
		persistence, err = ps.NewMemoryPersistence(identity)
	} else {
		fmt.Printf("%sUsing file persistence: %s%s\n", SuccessColor, *baseDir, ResetColor)
		persistence, err = ps.NewFilePersistence(*baseDir, identity, syncMode)
	}
	if err != nil {
		fmt.Printf("%sError: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}
	defer persistence.Close()

	instance := GrainDB.Open(persistence)
	engine, err := instance.EngineWithOptions(db.Options{ChunkSize: *chunkSize})
	if err != nil {
		fmt.Printf("%sError recovering database: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}
	defer engine.Close()

	cli := &CLI{
		engine:      engine,
		instance:    instance,
		historyFile: getHistoryPath(),
	}

	// Execute SQL file if provided
	if *sqlFile != "" {
		if err := cli.importFile(*sqlFile); err != nil {
			fmt.Printf("%sError importing file: %v%s\n", ErrorColor, err, ResetColor)
			os.Exit(1)
		}
		return
	}

	cli.run()
}

func printBanner() {
	fmt.Println()
	bannerWidth := 39 // inner width of the banner box
	versionLine := fmt.Sprintf("GrainDB v%s", Version)
	padding := bannerWidth - len(versionLine) - 2 // -2 for "  " margins
	if padding < 0 {
		padding = 0
	}
	leftPad := padding / 2
	rightPad := padding - leftPad

	fmt.Printf("%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s║ %*s%s%*s ║%s\n", BoldColor, PromptColor, leftPad, "", versionLine, rightPad, "", ResetColor)
	fmt.Printf("%s%s║   Embedded Columnar SQL Engine        ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
	fmt.Println("Type .help for commands, .quit to exit")
	fmt.Println()
}

func (cli *CLI) run() {
	cli.line = liner.NewLiner()
	defer cli.line.Close()
	cli.line.SetCtrlCAborts(true)

	cli.loadHistory()
	defer cli.saveHistory()

	var multiLineBuffer strings.Builder

	for {
		input, err := cli.line.Prompt(cli.getPrompt(multiLineBuffer.Len() > 0))
		if err != nil {
			fmt.Printf("\n%sGoodbye!%s\n", SuccessColor, ResetColor)
			return
		}

		if strings.TrimSpace(input) == "" {
			continue
		}

		// Special commands only outside multi-line mode
		if multiLineBuffer.Len() == 0 && strings.HasPrefix(input, ".") {
			cli.line.AppendHistory(input)
			if cli.handleCommand(input) {
				continue
			}
			return
		}

		// Multi-line support: accumulate until we see a semicolon
		multiLineBuffer.WriteString(input)

		trimmed := strings.TrimSpace(multiLineBuffer.String())
		if !strings.HasSuffix(trimmed, ";") {
			multiLineBuffer.WriteString(" ")
			continue
		}

		statement := strings.TrimSuffix(trimmed, ";")
		multiLineBuffer.Reset()

		if strings.TrimSpace(statement) == "" {
			continue
		}

		cli.line.AppendHistory(statement + ";")

		result, err := cli.engine.Execute(context.Background(), statement)
		if err != nil {
			fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		} else {
			result.Display()
		}
	}
}

func (cli *CLI) getPrompt(multiLine bool) string {
	if multiLine {
		return fmt.Sprintf("%s   ...>%s ", PromptColor, ResetColor)
	}
	return fmt.Sprintf("%sgraindb>%s ", PromptColor, ResetColor)
}

// handleCommand runs a dot command. A true return keeps the REPL going.
func (cli *CLI) handleCommand(input string) bool {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return true
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		fmt.Printf("%sGoodbye!%s\n", SuccessColor, ResetColor)
		return false

	case ".help", ".h", ".?":
		cli.printHelp()

	case ".tables":
		cli.showTables()

	case ".schema":
		if len(parts) > 1 {
			cli.showSchema(parts[1])
		} else {
			fmt.Printf("%s✗ Usage: .schema <table>%s\n", ErrorColor, ResetColor)
		}

	case ".checkpoint":
		checkpoint, err := cli.engine.Checkpoint()
		if err != nil {
			fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		} else {
			fmt.Printf("%s✓ Checkpoint %s at sequence %d%s\n", SuccessColor, checkpoint.Id[:8], checkpoint.Seq, ResetColor)
		}

	case ".checkpoints":
		cli.showCheckpoints()

	case ".clear", ".cls":
		fmt.Print("\033[H\033[2J")

	case ".version":
		fmt.Printf("GrainDB version %s\n", Version)

	case ".import":
		if len(parts) > 1 {
			if err := cli.importFile(parts[1]); err != nil {
				fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
			}
		} else {
			fmt.Printf("%s✗ Usage: .import <file.sql>%s\n", ErrorColor, ResetColor)
		}

	default:
		fmt.Printf("%s✗ Unknown command: %s (type .help for commands)%s\n", ErrorColor, parts[0], ResetColor)
	}

	return true
}

func (cli *CLI) printHelp() {
	fmt.Println()
	fmt.Printf("%s%sSpecial Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println("  .help, .h        Show this help message")
	fmt.Println("  .quit, .exit     Exit the CLI")
	fmt.Println("  .tables          List all tables")
	fmt.Println("  .schema <table>  Show a table's columns")
	fmt.Println("  .checkpoint      Persist all tables and truncate the log")
	fmt.Println("  .checkpoints     List checkpoints, newest first")
	fmt.Println("  .import <file>   Execute SQL statements from a file")
	fmt.Println("  .clear           Clear the screen")
	fmt.Println("  .version         Show version info")
	fmt.Println()
	fmt.Printf("%s%sSQL Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println("  CREATE TABLE <table> (<column> <type> [NOT NULL], ...);")
	fmt.Println("  DROP TABLE <table>;")
	fmt.Println("  ALTER TABLE <table> ADD COLUMN <column> <type> [DEFAULT <value>];")
	fmt.Println("  CREATE INDEX ON <table> (<cols>) [USING HASH|ORDERED];")
	fmt.Println("  INSERT INTO <table> (<cols>) VALUES (<vals>), ...;")
	fmt.Println("  SELECT <cols> FROM <table> [WHERE ...] [ORDER BY ...] [LIMIT n];")
	fmt.Println("  UPDATE <table> SET <col>=<val> [WHERE ...];")
	fmt.Println("  DELETE FROM <table> [WHERE ...];")
	fmt.Println()
	fmt.Printf("%s%sAggregates:%s SUM, AVG, MIN, MAX, COUNT, GROUP BY, HAVING\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%sJoins:%s INNER JOIN, LEFT JOIN, RIGHT JOIN, FULL JOIN\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
}

func (cli *CLI) showTables() {
	names := cli.engine.Tables()
	if len(names) == 0 {
		fmt.Println("No tables")
		return
	}
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
}

func (cli *CLI) showSchema(table string) {
	schema, err := cli.engine.Schema(table)
	if err != nil {
		fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		return
	}
	for i := 0; i < schema.Len(); i++ {
		field := schema.Field(i)
		nullable := "NOT NULL"
		if field.Nullable {
			nullable = "NULL"
		}
		fmt.Printf("  %-20s %-8s %s\n", field.Name, field.Type, nullable)
	}
}

func (cli *CLI) showCheckpoints() {
	checkpoints, err := cli.instance.Checkpoints()
	if err != nil {
		fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		return
	}
	if len(checkpoints) == 0 {
		fmt.Println("No checkpoints")
		return
	}
	for _, checkpoint := range checkpoints {
		fmt.Printf("  %s  seq %-6d  %s\n", checkpoint.Id[:8], checkpoint.Seq, checkpoint.When.Format("2006-01-02 15:04:05"))
	}
}

func getHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".graindb_history")
}

func (cli *CLI) loadHistory() {
	if cli.historyFile == "" {
		return
	}
	file, err := os.Open(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = cli.line.ReadHistory(file)
}

func (cli *CLI) saveHistory() {
	if cli.historyFile == "" {
		return
	}
	file, err := os.Create(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = cli.line.WriteHistory(file)
}

// importFile reads and executes SQL statements from a file
func (cli *CLI) importFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	statements := splitStatements(string(data))

	successCount := 0
	errorCount := 0

	for i, statement := range statements {
		statement = strings.TrimSpace(statement)
		if statement == "" {
			continue
		}

		result, err := cli.engine.Execute(context.Background(), statement)
		if err != nil {
			fmt.Printf("%s[%d] ✗ %s%s\n", ErrorColor, i+1, truncate(statement, 50), ResetColor)
			fmt.Printf("      Error: %v\n", err)
			errorCount++
			continue
		}
		successCount++

		switch r := result.(type) {
		case db.CommitResult:
			var details []string
			if r.TablesCreated > 0 {
				details = append(details, fmt.Sprintf("%d table created", r.TablesCreated))
			}
			if r.TablesDeleted > 0 {
				details = append(details, fmt.Sprintf("%d table deleted", r.TablesDeleted))
			}
			if r.IndexesCreated > 0 {
				details = append(details, fmt.Sprintf("%d index created", r.IndexesCreated))
			}
			if r.RecordsWritten > 0 {
				details = append(details, fmt.Sprintf("%d written", r.RecordsWritten))
			}
			if r.RecordsDeleted > 0 {
				details = append(details, fmt.Sprintf("%d deleted", r.RecordsDeleted))
			}
			detailStr := ""
			if len(details) > 0 {
				detailStr = " (" + strings.Join(details, ", ") + ")"
			}
			fmt.Printf("%s[%d] ✓ %s%s%s\n", SuccessColor, i+1, truncate(statement, 50), detailStr, ResetColor)
		case db.QueryResult:
			fmt.Printf("%s[%d] ✓ %s (%d rows)%s\n", SuccessColor, i+1, truncate(statement, 50), r.RecordsRead, ResetColor)
		default:
			fmt.Printf("%s[%d] ✓ %s%s\n", SuccessColor, i+1, truncate(statement, 50), ResetColor)
		}
	}

	fmt.Printf("\n%s✓ Import complete: %d succeeded, %d failed%s\n",
		SuccessColor, successCount, errorCount, ResetColor)

	return nil
}

// splitStatements splits SQL content into individual statements
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(content); i++ {
		ch := content[i]

		// Handle string literals
		if (ch == '\'' || ch == '"') && (i == 0 || content[i-1] != '\\') {
			if !inString {
				inString = true
				stringChar = ch
			} else if ch == stringChar {
				inString = false
			}
		}

		// Handle comments
		if !inString && ch == '-' && i+1 < len(content) && content[i+1] == '-' {
			for i < len(content) && content[i] != '\n' {
				i++
			}
			continue
		}

		// Statement separator
		if !inString && ch == ';' {
			statement := strings.TrimSpace(current.String())
			if statement != "" {
				statements = append(statements, statement)
			}
			current.Reset()
			continue
		}

		current.WriteByte(ch)
	}

	statement := strings.TrimSpace(current.String())
	if statement != "" {
		statements = append(statements, statement)
	}

	return statements
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
