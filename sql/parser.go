package sql

import (
	"fmt"
	"strconv"

	"github.com/nickyhof/GrainDB/core"
)

// Parser is a recursive-descent parser over the tokenized statement. Each
// statement compiles once into a typed AST; nothing is re-parsed at
// execution time.
type Parser struct {
	tokens []Token
	pos    int
}

func NewParser(statement string) *Parser {
	return &Parser{tokens: tokenize(statement)}
}

func (parser *Parser) current() Token {
	return parser.tokens[parser.pos]
}

func (parser *Parser) advance() Token {
	token := parser.tokens[parser.pos]
	if token.Type != EOF {
		parser.pos++
	}
	return token
}

func (parser *Parser) accept(t TokenType) bool {
	if parser.current().Type == t {
		parser.advance()
		return true
	}
	return false
}

func (parser *Parser) expect(t TokenType, what string) (Token, error) {
	token := parser.current()
	if token.Type != t {
		return token, fmt.Errorf("expected %s, got %q", what, token.Value)
	}
	parser.advance()
	return token, nil
}

func (parser *Parser) Parse() (Statement, error) {
	switch parser.advance().Type {
	case Select:
		return parser.parseSelect()
	case Insert:
		return parser.parseInsert()
	case Update:
		return parser.parseUpdate()
	case Delete:
		return parser.parseDelete()
	case Create:
		switch {
		case parser.accept(Table):
			return parser.parseCreateTable()
		case parser.accept(Index):
			return parser.parseCreateIndex()
		default:
			return nil, fmt.Errorf("expected TABLE or INDEX after CREATE, got %q", parser.current().Value)
		}
	case Drop:
		switch {
		case parser.accept(Table):
			name, err := parser.expect(Identifier, "table name")
			if err != nil {
				return nil, err
			}
			return DropTableStatement{Table: name.Value}, nil
		case parser.accept(Index):
			return parser.parseDropIndex()
		default:
			return nil, fmt.Errorf("expected TABLE or INDEX after DROP, got %q", parser.current().Value)
		}
	case Alter:
		return parser.parseAlterTable()
	default:
		return nil, fmt.Errorf("unsupported statement: %q", parser.tokens[0].Value)
	}
}

func (parser *Parser) parseSelect() (Statement, error) {
	statement := SelectStatement{Limit: -1, Offset: -1}

	statement.Distinct = parser.accept(Distinct)

	if err := parser.parseSelectList(&statement); err != nil {
		return nil, err
	}

	if _, err := parser.expect(From, "FROM"); err != nil {
		return nil, err
	}
	name, err := parser.expect(Identifier, "table name")
	if err != nil {
		return nil, err
	}
	statement.Table = name.Value
	statement.Alias = parser.parseAlias()

	for {
		join, ok, err := parser.parseJoin()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		statement.Joins = append(statement.Joins, join)
	}

	if parser.accept(Where) {
		expr, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		statement.Where = expr
	}

	if parser.accept(Group) {
		if _, err := parser.expect(By, "BY"); err != nil {
			return nil, err
		}
		columns, err := parser.parseIdentifierList()
		if err != nil {
			return nil, err
		}
		statement.GroupBy = columns
	}

	if parser.accept(Having) {
		expr, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		statement.Having = expr
	}

	if parser.accept(Order) {
		if _, err := parser.expect(By, "BY"); err != nil {
			return nil, err
		}
		for {
			column, err := parser.expect(Identifier, "order column")
			if err != nil {
				return nil, err
			}
			clause := OrderByClause{Column: column.Value}
			if parser.accept(Desc) {
				clause.Descending = true
			} else {
				parser.accept(Asc)
			}
			statement.OrderBy = append(statement.OrderBy, clause)
			if !parser.accept(Comma) {
				break
			}
		}
	}

	if parser.accept(Limit) {
		n, err := parser.parseSignedInt()
		if err != nil {
			return nil, fmt.Errorf("LIMIT: %w", err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: LIMIT must not be negative", core.ErrInvalidArgument)
		}
		statement.Limit = n
	}
	if parser.accept(Offset) {
		n, err := parser.parseSignedInt()
		if err != nil {
			return nil, fmt.Errorf("OFFSET: %w", err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: OFFSET must not be negative", core.ErrInvalidArgument)
		}
		statement.Offset = n
	}

	return statement, parser.expectEOF()
}

func (parser *Parser) parseSelectList(statement *SelectStatement) error {
	if parser.accept(Wildcard) {
		return nil
	}

	for {
		token := parser.current()
		switch token.Type {
		case Count, Sum, Avg, Min, Max:
			aggregate, err := parser.parseAggregate()
			if err != nil {
				return err
			}
			statement.Aggregates = append(statement.Aggregates, aggregate)
		case Identifier:
			parser.advance()
			statement.Columns = append(statement.Columns, token.Value)
		default:
			return fmt.Errorf("expected column or aggregate, got %q", token.Value)
		}
		if !parser.accept(Comma) {
			return nil
		}
	}
}

func (parser *Parser) parseAggregate() (AggregateExpr, error) {
	aggregate, err := parser.parseAggregateCall()
	if err != nil {
		return aggregate, err
	}

	if parser.accept(As) {
		alias, err := parser.expect(Identifier, "alias")
		if err != nil {
			return aggregate, err
		}
		aggregate.Alias = alias.Value
	}
	return aggregate, nil
}

// parseAggregateCall parses FUNC(column) or COUNT(*) without an alias; the
// select list adds one, expressions never do.
func (parser *Parser) parseAggregateCall() (AggregateExpr, error) {
	var aggregate AggregateExpr
	switch parser.advance().Type {
	case Count:
		aggregate.Func = CountFunc
	case Sum:
		aggregate.Func = SumFunc
	case Avg:
		aggregate.Func = AvgFunc
	case Min:
		aggregate.Func = MinFunc
	case Max:
		aggregate.Func = MaxFunc
	}

	if _, err := parser.expect(ParenOpen, "("); err != nil {
		return aggregate, err
	}
	if parser.accept(Wildcard) {
		if aggregate.Func != CountFunc {
			return aggregate, fmt.Errorf("only COUNT accepts *")
		}
	} else {
		column, err := parser.expect(Identifier, "aggregate column")
		if err != nil {
			return aggregate, err
		}
		aggregate.Column = column.Value
	}
	if _, err := parser.expect(ParenClose, ")"); err != nil {
		return aggregate, err
	}
	return aggregate, nil
}

func (parser *Parser) parseAlias() string {
	if parser.accept(As) {
		if parser.current().Type == Identifier {
			return parser.advance().Value
		}
		return ""
	}
	if parser.current().Type == Identifier {
		return parser.advance().Value
	}
	return ""
}

func (parser *Parser) parseJoin() (JoinClause, bool, error) {
	var join JoinClause

	switch parser.current().Type {
	case Join:
		parser.advance()
	case Inner:
		parser.advance()
		if _, err := parser.expect(Join, "JOIN"); err != nil {
			return join, false, err
		}
	case Left, Right, Full:
		switch parser.advance().Type {
		case Left:
			join.Join = LeftJoin
		case Right:
			join.Join = RightJoin
		case Full:
			join.Join = FullJoin
		}
		parser.accept(Outer)
		if _, err := parser.expect(Join, "JOIN"); err != nil {
			return join, false, err
		}
	default:
		return join, false, nil
	}

	name, err := parser.expect(Identifier, "join table")
	if err != nil {
		return join, false, err
	}
	join.Table = name.Value
	join.Alias = parser.parseJoinAlias()

	if _, err := parser.expect(On, "ON"); err != nil {
		return join, false, err
	}
	left, err := parser.expect(Identifier, "join column")
	if err != nil {
		return join, false, err
	}
	if _, err := parser.expect(Equals, "="); err != nil {
		return join, false, err
	}
	right, err := parser.expect(Identifier, "join column")
	if err != nil {
		return join, false, err
	}
	join.LeftCol = left.Value
	join.RightCol = right.Value
	return join, true, nil
}

// Join aliases stop at ON; a bare identifier before ON is the alias.
func (parser *Parser) parseJoinAlias() string {
	if parser.accept(As) {
		if parser.current().Type == Identifier {
			return parser.advance().Value
		}
		return ""
	}
	if parser.current().Type == Identifier {
		return parser.advance().Value
	}
	return ""
}

// parseExpr parses OR-connected terms (lowest precedence).
func (parser *Parser) parseExpr() (Expr, error) {
	left, err := parser.parseAnd()
	if err != nil {
		return nil, err
	}
	for parser.accept(Or) {
		right, err := parser.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: LogicalOr, Left: left, Right: right}
	}
	return left, nil
}

func (parser *Parser) parseAnd() (Expr, error) {
	left, err := parser.parseUnary()
	if err != nil {
		return nil, err
	}
	for parser.accept(And) {
		right, err := parser.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: LogicalAnd, Left: left, Right: right}
	}
	return left, nil
}

func (parser *Parser) parseUnary() (Expr, error) {
	if parser.accept(Not) {
		inner, err := parser.parseUnary()
		if err != nil {
			return nil, err
		}
		return NotExpr{Expr: inner}, nil
	}
	if parser.accept(ParenOpen) {
		inner, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := parser.expect(ParenClose, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return parser.parseLeaf()
}

// parseLeafColumn reads the column side of a predicate leaf. An aggregate
// call names the aggregate's output column, so HAVING COUNT(*) > 1 works
// without an alias in the select list.
func (parser *Parser) parseLeafColumn() (string, error) {
	switch parser.current().Type {
	case Count, Sum, Avg, Min, Max:
		aggregate, err := parser.parseAggregateCall()
		if err != nil {
			return "", err
		}
		return aggregate.Name(), nil
	}
	token, err := parser.expect(Identifier, "column")
	if err != nil {
		return "", err
	}
	return token.Value, nil
}

func (parser *Parser) parseLeaf() (Expr, error) {
	column, err := parser.parseLeafColumn()
	if err != nil {
		return nil, err
	}

	negated := parser.accept(Not)

	token := parser.advance()
	switch token.Type {
	case Is:
		test := NullTest{Column: column, Negated: parser.accept(Not)}
		if _, err := parser.expect(Null, "NULL"); err != nil {
			return nil, err
		}
		if negated {
			return NotExpr{Expr: test}, nil
		}
		return test, nil

	case In:
		if _, err := parser.expect(ParenOpen, "("); err != nil {
			return nil, err
		}
		var values []core.Value
		for {
			value, err := parser.parseLiteral()
			if err != nil {
				return nil, err
			}
			values = append(values, value)
			if !parser.accept(Comma) {
				break
			}
		}
		if _, err := parser.expect(ParenClose, ")"); err != nil {
			return nil, err
		}
		return InExpr{Column: column, Values: values, Negated: negated}, nil

	case Between:
		low, err := parser.parseLiteral()
		if err != nil {
			return nil, err
		}
		if _, err := parser.expect(And, "AND"); err != nil {
			return nil, err
		}
		high, err := parser.parseLiteral()
		if err != nil {
			return nil, err
		}
		between := BetweenExpr{Column: column, Low: low, High: high}
		if negated {
			return NotExpr{Expr: between}, nil
		}
		return between, nil

	case Like:
		pattern, err := parser.expect(String, "pattern")
		if err != nil {
			return nil, err
		}
		comparison := Comparison{Column: column, Op: LikeOp, Value: core.StringValue(pattern.Value)}
		if negated {
			return NotExpr{Expr: comparison}, nil
		}
		return comparison, nil

	case Equals, NotEquals, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual:
		if negated {
			return nil, fmt.Errorf("NOT before comparison operator %q", token.Value)
		}
		value, err := parser.parseLiteral()
		if err != nil {
			return nil, err
		}
		var op CompareOp
		switch token.Type {
		case Equals:
			op = EqualsOp
		case NotEquals:
			op = NotEqualsOp
		case LessThan:
			op = LessThanOp
		case LessThanOrEqual:
			op = LessThanOrEqualOp
		case GreaterThan:
			op = GreaterThanOp
		case GreaterThanOrEqual:
			op = GreaterThanOrEqualOp
		}
		return Comparison{Column: column, Op: op, Value: value}, nil

	default:
		return nil, fmt.Errorf("expected comparison after column %s, got %q", column, token.Value)
	}
}

func (parser *Parser) parseLiteral() (core.Value, error) {
	token := parser.advance()
	switch token.Type {
	case Null:
		return core.Null(), nil
	case String:
		return core.StringValue(token.Value), nil
	case Int:
		n, err := strconv.ParseInt(token.Value, 10, 64)
		if err != nil {
			return core.Null(), fmt.Errorf("bad integer literal %q", token.Value)
		}
		return core.IntValue(n), nil
	case Float:
		f, err := strconv.ParseFloat(token.Value, 64)
		if err != nil {
			return core.Null(), fmt.Errorf("bad float literal %q", token.Value)
		}
		return core.FloatValue(f), nil
	case Minus:
		value, err := parser.parseLiteral()
		if err != nil {
			return core.Null(), err
		}
		switch value.Kind {
		case core.IntKind:
			return core.IntValue(-value.Int), nil
		case core.FloatKind:
			return core.FloatValue(-value.Float), nil
		default:
			return core.Null(), fmt.Errorf("minus before non-numeric literal")
		}
	default:
		return core.Null(), fmt.Errorf("expected literal, got %q", token.Value)
	}
}

func (parser *Parser) parseSignedInt() (int, error) {
	negative := parser.accept(Minus)
	token, err := parser.expect(Int, "integer")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(token.Value)
	if err != nil {
		return 0, fmt.Errorf("bad integer %q", token.Value)
	}
	if negative {
		n = -n
	}
	return n, nil
}

func (parser *Parser) parseIdentifierList() ([]string, error) {
	var names []string
	for {
		name, err := parser.expect(Identifier, "column name")
		if err != nil {
			return nil, err
		}
		names = append(names, name.Value)
		if !parser.accept(Comma) {
			return names, nil
		}
	}
}

func (parser *Parser) parseInsert() (Statement, error) {
	if _, err := parser.expect(Into, "INTO"); err != nil {
		return nil, err
	}
	name, err := parser.expect(Identifier, "table name")
	if err != nil {
		return nil, err
	}
	statement := InsertStatement{Table: name.Value}

	if parser.accept(ParenOpen) {
		columns, err := parser.parseIdentifierList()
		if err != nil {
			return nil, err
		}
		if _, err := parser.expect(ParenClose, ")"); err != nil {
			return nil, err
		}
		statement.Columns = columns
	}

	if _, err := parser.expect(Values, "VALUES"); err != nil {
		return nil, err
	}
	for {
		if _, err := parser.expect(ParenOpen, "("); err != nil {
			return nil, err
		}
		var row []core.Value
		for {
			value, err := parser.parseLiteral()
			if err != nil {
				return nil, err
			}
			row = append(row, value)
			if !parser.accept(Comma) {
				break
			}
		}
		if _, err := parser.expect(ParenClose, ")"); err != nil {
			return nil, err
		}
		statement.Rows = append(statement.Rows, row)
		if !parser.accept(Comma) {
			break
		}
	}

	return statement, parser.expectEOF()
}

func (parser *Parser) parseUpdate() (Statement, error) {
	name, err := parser.expect(Identifier, "table name")
	if err != nil {
		return nil, err
	}
	statement := UpdateStatement{Table: name.Value}

	if _, err := parser.expect(Set, "SET"); err != nil {
		return nil, err
	}
	for {
		column, err := parser.expect(Identifier, "column name")
		if err != nil {
			return nil, err
		}
		if _, err := parser.expect(Equals, "="); err != nil {
			return nil, err
		}
		value, err := parser.parseLiteral()
		if err != nil {
			return nil, err
		}
		statement.Sets = append(statement.Sets, SetClause{Column: column.Value, Value: value})
		if !parser.accept(Comma) {
			break
		}
	}

	if parser.accept(Where) {
		expr, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		statement.Where = expr
	}

	return statement, parser.expectEOF()
}

func (parser *Parser) parseDelete() (Statement, error) {
	if _, err := parser.expect(From, "FROM"); err != nil {
		return nil, err
	}
	name, err := parser.expect(Identifier, "table name")
	if err != nil {
		return nil, err
	}
	statement := DeleteStatement{Table: name.Value}

	if parser.accept(Where) {
		expr, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		statement.Where = expr
	}

	return statement, parser.expectEOF()
}

func (parser *Parser) parseCreateTable() (Statement, error) {
	name, err := parser.expect(Identifier, "table name")
	if err != nil {
		return nil, err
	}
	statement := CreateTableStatement{Table: name.Value}

	if _, err := parser.expect(ParenOpen, "("); err != nil {
		return nil, err
	}
	for {
		field, err := parser.parseFieldDef()
		if err != nil {
			return nil, err
		}
		statement.Fields = append(statement.Fields, field)
		if !parser.accept(Comma) {
			break
		}
	}
	if _, err := parser.expect(ParenClose, ")"); err != nil {
		return nil, err
	}

	return statement, parser.expectEOF()
}

func (parser *Parser) parseFieldDef() (core.Field, error) {
	name, err := parser.expect(Identifier, "column name")
	if err != nil {
		return core.Field{}, err
	}

	typ, err := parser.parseColumnType()
	if err != nil {
		return core.Field{}, err
	}

	field := core.Field{Name: name.Value, Type: typ, Nullable: true}
	if parser.accept(Not) {
		if _, err := parser.expect(Null, "NULL"); err != nil {
			return core.Field{}, err
		}
		field.Nullable = false
	} else {
		parser.accept(Null)
	}
	return field, nil
}

func (parser *Parser) parseColumnType() (core.ColumnType, error) {
	token, err := parser.expect(Identifier, "column type")
	if err != nil {
		return 0, err
	}
	switch toUpper(token.Value) {
	case "INT", "INTEGER", "BIGINT":
		return core.IntType, nil
	case "FLOAT", "DOUBLE", "REAL":
		return core.FloatType, nil
	case "STRING", "TEXT", "VARCHAR":
		return core.StringType, nil
	case "VARIANT":
		return core.VariantType, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", token.Value)
	}
}

func (parser *Parser) parseCreateIndex() (Statement, error) {
	if _, err := parser.expect(On, "ON"); err != nil {
		return nil, err
	}
	name, err := parser.expect(Identifier, "table name")
	if err != nil {
		return nil, err
	}
	statement := CreateIndexStatement{Table: name.Value}

	if _, err := parser.expect(ParenOpen, "("); err != nil {
		return nil, err
	}
	columns, err := parser.parseIdentifierList()
	if err != nil {
		return nil, err
	}
	if _, err := parser.expect(ParenClose, ")"); err != nil {
		return nil, err
	}
	statement.Columns = columns

	if parser.accept(Using) {
		kind, err := parser.expect(Identifier, "index kind")
		if err != nil {
			return nil, err
		}
		switch toUpper(kind.Value) {
		case "HASH":
			statement.Kind = HashIndexKind
		case "ORDERED", "BTREE":
			statement.Kind = OrderedIndexKind
		default:
			return nil, fmt.Errorf("unknown index kind %q", kind.Value)
		}
	}

	return statement, parser.expectEOF()
}

func (parser *Parser) parseDropIndex() (Statement, error) {
	if _, err := parser.expect(On, "ON"); err != nil {
		return nil, err
	}
	name, err := parser.expect(Identifier, "table name")
	if err != nil {
		return nil, err
	}
	if _, err := parser.expect(ParenOpen, "("); err != nil {
		return nil, err
	}
	column, err := parser.expect(Identifier, "column name")
	if err != nil {
		return nil, err
	}
	if _, err := parser.expect(ParenClose, ")"); err != nil {
		return nil, err
	}
	return DropIndexStatement{Table: name.Value, Column: column.Value}, parser.expectEOF()
}

func (parser *Parser) parseAlterTable() (Statement, error) {
	if _, err := parser.expect(Table, "TABLE"); err != nil {
		return nil, err
	}
	name, err := parser.expect(Identifier, "table name")
	if err != nil {
		return nil, err
	}
	statement := AlterTableStatement{Table: name.Value, Default: core.Null()}

	switch {
	case parser.accept(Add):
		parser.accept(Column)
		field, err := parser.parseFieldDef()
		if err != nil {
			return nil, err
		}
		statement.Action = AddColumnAction
		statement.Field = field
		if parser.current().Type == Identifier && toUpper(parser.current().Value) == "DEFAULT" {
			parser.advance()
			value, err := parser.parseLiteral()
			if err != nil {
				return nil, err
			}
			statement.Default = value
		}
	case parser.accept(Drop):
		parser.accept(Column)
		column, err := parser.expect(Identifier, "column name")
		if err != nil {
			return nil, err
		}
		statement.Action = DropColumnAction
		statement.Column = column.Value
	default:
		return nil, fmt.Errorf("expected ADD or DROP, got %q", parser.current().Value)
	}

	return statement, parser.expectEOF()
}

func (parser *Parser) expectEOF() error {
	if parser.current().Type != EOF {
		return fmt.Errorf("unexpected trailing input at %q", parser.current().Value)
	}
	return nil
}
