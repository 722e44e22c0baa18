package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type ColumnType int

const (
	IntType ColumnType = iota
	FloatType
	StringType
	VariantType
)

func (t ColumnType) String() string {
	switch t {
	case IntType:
		return "INT"
	case FloatType:
		return "FLOAT"
	case StringType:
		return "STRING"
	case VariantType:
		return "VARIANT"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

type ValueKind int

const (
	NullKind ValueKind = iota
	IntKind
	FloatKind
	StringKind
)

// Value is a tagged scalar. A Value is either null or holds exactly one of
// the payload fields, selected by Kind.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
}

func Null() Value                { return Value{Kind: NullKind} }
func IntValue(v int64) Value     { return Value{Kind: IntKind, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: FloatKind, Float: v} }
func StringValue(v string) Value { return Value{Kind: StringKind, Str: v} }

func (v Value) IsNull() bool { return v.Kind == NullKind }

// AsFloat widens int values to float64. Only valid for numeric kinds.
func (v Value) AsFloat() float64 {
	if v.Kind == IntKind {
		return float64(v.Int)
	}
	return v.Float
}

func (v Value) String() string {
	switch v.Kind {
	case NullKind:
		return "NULL"
	case IntKind:
		return strconv.FormatInt(v.Int, 10)
	case FloatKind:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}

// Compare orders two values. The second return is false when the pair is
// incomparable: either side null, NaN involved, or mismatched kinds that
// cannot be widened numerically.
func (v Value) Compare(other Value) (int, bool) {
	if v.IsNull() || other.IsNull() {
		return 0, false
	}

	if v.Kind == StringKind || other.Kind == StringKind {
		if v.Kind != StringKind || other.Kind != StringKind {
			return 0, false
		}
		switch {
		case v.Str < other.Str:
			return -1, true
		case v.Str > other.Str:
			return 1, true
		default:
			return 0, true
		}
	}

	if v.Kind == IntKind && other.Kind == IntKind {
		switch {
		case v.Int < other.Int:
			return -1, true
		case v.Int > other.Int:
			return 1, true
		default:
			return 0, true
		}
	}

	a, b := v.AsFloat(), other.AsFloat()
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	default:
		return 0, true
	}
}

// Equal reports value equality under Compare semantics. Null never equals
// anything, including null.
func (v Value) Equal(other Value) bool {
	cmp, ok := v.Compare(other)
	return ok && cmp == 0
}

// Key is a comparable form of Value usable as a map key. Distinct from
// Compare: two null keys are equal, so nulls group together (GROUP BY
// treats NULL as a group value equal to itself).
type Key struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
}

func (v Value) Key() Key {
	// Normalize ints that appear in float columns so 1 and 1.0 collide.
	if v.Kind == FloatKind && v.Float == math.Trunc(v.Float) && !math.IsInf(v.Float, 0) &&
		v.Float >= math.MinInt64 && v.Float <= math.MaxInt64 {
		return Key{Kind: IntKind, Int: int64(v.Float)}
	}
	return Key{Kind: v.Kind, Int: v.Int, Float: v.Float, Str: v.Str}
}

type jsonValue struct {
	Int    *int64   `json:"int,omitempty"`
	Float  *float64 `json:"float,omitempty"`
	String *string  `json:"string,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case NullKind:
		return []byte("null"), nil
	case IntKind:
		return json.Marshal(jsonValue{Int: &v.Int})
	case FloatKind:
		return json.Marshal(jsonValue{Float: &v.Float})
	default:
		return json.Marshal(jsonValue{String: &v.Str})
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null()
		return nil
	}

	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}

	switch {
	case jv.Int != nil:
		*v = IntValue(*jv.Int)
	case jv.Float != nil:
		*v = FloatValue(*jv.Float)
	case jv.String != nil:
		*v = StringValue(*jv.String)
	default:
		return fmt.Errorf("value has no payload: %s", string(data))
	}
	return nil
}

// Identity identifies the author of snapshot commits.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
