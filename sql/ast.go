package sql

import "github.com/nickyhof/GrainDB/core"

type StatementType int

const (
	SelectStatementType StatementType = iota
	InsertStatementType
	UpdateStatementType
	DeleteStatementType
	CreateTableStatementType
	DropTableStatementType
	CreateIndexStatementType
	DropIndexStatementType
	AlterTableStatementType
)

type Statement interface {
	Type() StatementType
}

// Expr is a predicate tree node: comparisons and null tests at the leaves,
// AND/OR/NOT above them. The executor evaluates the tree in three-valued
// logic.
type Expr interface {
	exprNode()
}

type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

type BinaryExpr struct {
	Op    LogicalOp
	Left  Expr
	Right Expr
}

type NotExpr struct {
	Expr Expr
}

type CompareOp int

const (
	EqualsOp CompareOp = iota
	NotEqualsOp
	LessThanOp
	LessThanOrEqualOp
	GreaterThanOp
	GreaterThanOrEqualOp
	LikeOp
)

// Comparison is a column-against-literal leaf.
type Comparison struct {
	Column string
	Op     CompareOp
	Value  core.Value
}

// InExpr tests membership of a column value in a literal list.
type InExpr struct {
	Column  string
	Values  []core.Value
	Negated bool
}

// BetweenExpr tests a column value against an inclusive range.
type BetweenExpr struct {
	Column string
	Low    core.Value
	High   core.Value
}

// NullTest is IS NULL / IS NOT NULL; the only null-aware leaves.
type NullTest struct {
	Column  string
	Negated bool
}

func (BinaryExpr) exprNode()  {}
func (NotExpr) exprNode()     {}
func (Comparison) exprNode()  {}
func (InExpr) exprNode()      {}
func (BetweenExpr) exprNode() {}
func (NullTest) exprNode()    {}

type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
)

type JoinClause struct {
	Join     JoinType
	Table    string
	Alias    string
	LeftCol  string // outer side column, possibly alias-qualified
	RightCol string // joined side column
}

type AggregateFunc int

const (
	CountFunc AggregateFunc = iota
	SumFunc
	AvgFunc
	MinFunc
	MaxFunc
)

// String names the function the way output columns spell it.
func (fn AggregateFunc) String() string {
	switch fn {
	case CountFunc:
		return "count"
	case SumFunc:
		return "sum"
	case AvgFunc:
		return "avg"
	case MinFunc:
		return "min"
	}
	return "max"
}

type AggregateExpr struct {
	Func   AggregateFunc
	Column string // empty for COUNT(*)
	Alias  string
}

// Name is the column name the aggregate's result carries when no alias
// renames it. HAVING clauses written in call form resolve through it.
func (agg AggregateExpr) Name() string {
	if agg.Column == "" {
		return agg.Func.String() + "(*)"
	}
	return agg.Func.String() + "(" + agg.Column + ")"
}

type OrderByClause struct {
	Column     string
	Descending bool
}

type SelectStatement struct {
	Table      string
	Alias      string
	Columns    []string
	Distinct   bool
	Aggregates []AggregateExpr
	Joins      []JoinClause
	Where      Expr
	GroupBy    []string
	Having     Expr
	OrderBy    []OrderByClause
	Limit      int // -1 when absent
	Offset     int // -1 when absent
}

type InsertStatement struct {
	Table   string
	Columns []string
	Rows    [][]core.Value
}

type SetClause struct {
	Column string
	Value  core.Value
}

type UpdateStatement struct {
	Table string
	Sets  []SetClause
	Where Expr
}

type DeleteStatement struct {
	Table string
	Where Expr
}

type CreateTableStatement struct {
	Table  string
	Fields []core.Field
}

type DropTableStatement struct {
	Table string
}

type IndexKind int

const (
	HashIndexKind IndexKind = iota
	OrderedIndexKind
)

type CreateIndexStatement struct {
	Table   string
	Columns []string // more than one column builds a composite index
	Kind    IndexKind
}

type DropIndexStatement struct {
	Table  string
	Column string
}

type AlterAction int

const (
	AddColumnAction AlterAction = iota
	DropColumnAction
)

type AlterTableStatement struct {
	Table   string
	Action  AlterAction
	Field   core.Field // for ADD COLUMN
	Default core.Value // for ADD COLUMN
	Column  string     // for DROP COLUMN
}

func (s SelectStatement) Type() StatementType      { return SelectStatementType }
func (s InsertStatement) Type() StatementType      { return InsertStatementType }
func (s UpdateStatement) Type() StatementType      { return UpdateStatementType }
func (s DeleteStatement) Type() StatementType      { return DeleteStatementType }
func (s CreateTableStatement) Type() StatementType { return CreateTableStatementType }
func (s DropTableStatement) Type() StatementType   { return DropTableStatementType }
func (s CreateIndexStatement) Type() StatementType { return CreateIndexStatementType }
func (s DropIndexStatement) Type() StatementType   { return DropIndexStatementType }
func (s AlterTableStatement) Type() StatementType  { return AlterTableStatementType }
