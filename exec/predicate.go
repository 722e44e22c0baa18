package exec

import (
	"fmt"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/sql"
)

// tri is a three-valued truth result. Comparisons against null produce
// triNull, which propagates through AND, OR and NOT under SQL rules and
// filters rows out unless the whole predicate lands on triTrue.
type tri int

const (
	triFalse tri = iota
	triTrue
	triNull
)

func (t tri) not() tri {
	switch t {
	case triTrue:
		return triFalse
	case triFalse:
		return triTrue
	default:
		return triNull
	}
}

func triAnd(a, b tri) tri {
	if a == triFalse || b == triFalse {
		return triFalse
	}
	if a == triNull || b == triNull {
		return triNull
	}
	return triTrue
}

func triOr(a, b tri) tri {
	if a == triTrue || b == triTrue {
		return triTrue
	}
	if a == triNull || b == triNull {
		return triNull
	}
	return triFalse
}

// predicate is an expression bound to a relation's column ordinals so row
// evaluation does no name resolution.
type predicate struct {
	eval func(row []core.Value) tri
}

// CompileFilter binds a predicate to a table schema and returns a row
// filter that is true only when the predicate definitely holds. Used by
// mutations that need WHERE evaluation outside a query pipeline.
func CompileFilter(expr sql.Expr, schema core.Schema, qualifier string) (func(row []core.Value) bool, error) {
	shape := &relation{}
	for i := 0; i < schema.Len(); i++ {
		field := schema.Field(i)
		shape.fields = append(shape.fields, relField{name: field.Name, qualifier: qualifier, typ: field.Type, nullable: field.Nullable})
	}
	pred, err := compilePredicate(expr, shape)
	if err != nil {
		return nil, err
	}
	return func(row []core.Value) bool { return pred.eval(row) == triTrue }, nil
}

// compilePredicate resolves every column reference in the expression
// against the relation and reports unknown columns and operand type
// mismatches before any row is touched.
func compilePredicate(expr sql.Expr, rel *relation) (*predicate, error) {
	eval, err := compileExpr(expr, rel)
	if err != nil {
		return nil, err
	}
	return &predicate{eval: eval}, nil
}

func compileExpr(expr sql.Expr, rel *relation) (func(row []core.Value) tri, error) {
	switch node := expr.(type) {
	case sql.BinaryExpr:
		left, err := compileExpr(node.Left, rel)
		if err != nil {
			return nil, err
		}
		right, err := compileExpr(node.Right, rel)
		if err != nil {
			return nil, err
		}
		if node.Op == sql.LogicalAnd {
			return func(row []core.Value) tri { return triAnd(left(row), right(row)) }, nil
		}
		return func(row []core.Value) tri { return triOr(left(row), right(row)) }, nil

	case sql.NotExpr:
		inner, err := compileExpr(node.Expr, rel)
		if err != nil {
			return nil, err
		}
		return func(row []core.Value) tri { return inner(row).not() }, nil

	case sql.Comparison:
		ordinal, err := rel.lookup(node.Column)
		if err != nil {
			return nil, err
		}
		if err := checkOperand(rel.fields[ordinal], node.Value, node.Op); err != nil {
			return nil, err
		}
		return compileComparison(ordinal, node.Op, node.Value)

	case sql.InExpr:
		ordinal, err := rel.lookup(node.Column)
		if err != nil {
			return nil, err
		}
		return func(row []core.Value) tri {
			value := row[ordinal]
			if value.IsNull() {
				return triNull
			}
			sawNull := false
			for _, candidate := range node.Values {
				if candidate.IsNull() {
					sawNull = true
					continue
				}
				if value.Equal(candidate) {
					if node.Negated {
						return triFalse
					}
					return triTrue
				}
			}
			if sawNull {
				return triNull
			}
			if node.Negated {
				return triTrue
			}
			return triFalse
		}, nil

	case sql.BetweenExpr:
		ordinal, err := rel.lookup(node.Column)
		if err != nil {
			return nil, err
		}
		return func(row []core.Value) tri {
			value := row[ordinal]
			if value.IsNull() || node.Low.IsNull() || node.High.IsNull() {
				return triNull
			}
			lowCmp, lowOK := value.Compare(node.Low)
			highCmp, highOK := value.Compare(node.High)
			if !lowOK || !highOK {
				return triFalse
			}
			if lowCmp >= 0 && highCmp <= 0 {
				return triTrue
			}
			return triFalse
		}, nil

	case sql.NullTest:
		ordinal, err := rel.lookup(node.Column)
		if err != nil {
			return nil, err
		}
		return func(row []core.Value) tri {
			isNull := row[ordinal].IsNull()
			if isNull != node.Negated {
				return triTrue
			}
			return triFalse
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported expression %T", core.ErrInvalidPredicate, expr)
	}
}

func compileComparison(ordinal int, op sql.CompareOp, literal core.Value) (func(row []core.Value) tri, error) {
	switch op {
	case sql.LikeOp:
		if literal.Kind != core.StringKind {
			return nil, fmt.Errorf("%w: LIKE pattern must be a string", core.ErrInvalidPredicate)
		}
		pattern := literal.Str
		return func(row []core.Value) tri {
			value := row[ordinal]
			if value.IsNull() {
				return triNull
			}
			if value.Kind != core.StringKind {
				return triFalse
			}
			if likeMatch(value.Str, pattern) {
				return triTrue
			}
			return triFalse
		}, nil

	case sql.EqualsOp, sql.NotEqualsOp, sql.LessThanOp, sql.LessThanOrEqualOp, sql.GreaterThanOp, sql.GreaterThanOrEqualOp:
		return func(row []core.Value) tri {
			value := row[ordinal]
			if value.IsNull() || literal.IsNull() {
				return triNull
			}
			cmp, ok := value.Compare(literal)
			if !ok {
				// Incomparable non-null operands, e.g. NaN or a string in a
				// variant column against a number.
				if op == sql.NotEqualsOp {
					return triTrue
				}
				return triFalse
			}
			if compareHolds(cmp, op) {
				return triTrue
			}
			return triFalse
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported comparison operator", core.ErrInvalidPredicate)
	}
}

func compareHolds(cmp int, op sql.CompareOp) bool {
	switch op {
	case sql.EqualsOp:
		return cmp == 0
	case sql.NotEqualsOp:
		return cmp != 0
	case sql.LessThanOp:
		return cmp < 0
	case sql.LessThanOrEqualOp:
		return cmp <= 0
	case sql.GreaterThanOp:
		return cmp > 0
	case sql.GreaterThanOrEqualOp:
		return cmp >= 0
	}
	return false
}

// checkOperand rejects literal kinds that can never compare against the
// column's type. Variant columns accept any literal.
func checkOperand(field relField, literal core.Value, op sql.CompareOp) error {
	if literal.IsNull() || field.typ == core.VariantType {
		return nil
	}
	switch field.typ {
	case core.StringType:
		if literal.Kind != core.StringKind {
			return fmt.Errorf("%w: column %s is a string, got %s", core.ErrTypeMismatch, field.name, literal)
		}
	case core.IntType, core.FloatType:
		if op == sql.LikeOp {
			return fmt.Errorf("%w: LIKE on numeric column %s", core.ErrTypeMismatch, field.name)
		}
		if literal.Kind == core.StringKind {
			return fmt.Errorf("%w: column %s is numeric, got string literal", core.ErrTypeMismatch, field.name)
		}
	}
	return nil
}

// likeMatch implements SQL LIKE with % (any run) and _ (single char)
// wildcards, matching bytewise.
func likeMatch(s, pattern string) bool {
	// Iterative backtracking over the last % seen.
	var si, pi int
	starP, starS := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '_' || pattern[pi] == s[si]):
			si++
			pi++
		case pi < len(pattern) && pattern[pi] == '%':
			starP = pi
			starS = si
			pi++
		case starP >= 0:
			starS++
			si = starS
			pi = starP + 1
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}
