// Package sql provides SQL lexing and parsing for GrainDB.
//
// The package includes a lexer that tokenizes SQL strings and a parser
// that produces abstract syntax trees for SQL statements.
//
// # Lexer Usage
//
//	lexer := sql.NewLexer("SELECT * FROM users")
//	for {
//	    token := lexer.NextToken()
//	    if token.Type == sql.EOF {
//	        break
//	    }
//	    fmt.Printf("Token: %d = %s\n", token.Type, token.Value)
//	}
//
// # Parser Usage
//
//	parser := sql.NewParser("SELECT * FROM users WHERE id = 1")
//	statement, err := parser.Parse()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Supported Statements
//
// The parser supports the following statement types:
//   - SelectStatement (joins, aggregates, GROUP BY, HAVING, ORDER BY,
//     LIMIT and OFFSET, DISTINCT)
//   - InsertStatement
//   - UpdateStatement
//   - DeleteStatement
//   - CreateTableStatement
//   - DropTableStatement
//   - CreateIndexStatement
//   - DropIndexStatement
//   - AlterTableStatement
//
// Predicates in WHERE and HAVING clauses combine comparisons with AND,
// OR and NOT, and support IS NULL, IN, BETWEEN and LIKE.
package sql
