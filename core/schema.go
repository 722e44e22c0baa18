package core

import "fmt"

type Field struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
}

// Accepts reports whether value can be stored in this field, returning the
// value to store (int literals widen into float fields).
func (f Field) Accepts(v Value) (Value, bool) {
	if v.IsNull() {
		return v, f.Nullable
	}

	switch f.Type {
	case IntType:
		return v, v.Kind == IntKind
	case FloatType:
		if v.Kind == IntKind {
			return FloatValue(float64(v.Int)), true
		}
		return v, v.Kind == FloatKind
	case StringType:
		return v, v.Kind == StringKind
	case VariantType:
		return v, true
	default:
		return v, false
	}
}

// Schema is an ordered list of fields with unique names. A schema is
// immutable once a table references it; evolution derives a new schema.
type Schema struct {
	fields []Field
	byName map[string]int
}

func NewSchema(fields []Field) (Schema, error) {
	byName := make(map[string]int, len(fields))
	for i, field := range fields {
		if field.Name == "" {
			return Schema{}, fmt.Errorf("%w: empty field name", ErrSchemaMismatch)
		}
		if _, exists := byName[field.Name]; exists {
			return Schema{}, fmt.Errorf("%w: duplicate field %s", ErrSchemaMismatch, field.Name)
		}
		byName[field.Name] = i
	}

	return Schema{fields: append([]Field(nil), fields...), byName: byName}, nil
}

func (s Schema) Len() int { return len(s.fields) }

func (s Schema) Field(i int) Field { return s.fields[i] }

func (s Schema) Fields() []Field { return append([]Field(nil), s.fields...) }

// Lookup returns the ordinal of the named field.
func (s Schema) Lookup(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// WithField derives a new schema with an extra trailing field.
func (s Schema) WithField(field Field) (Schema, error) {
	return NewSchema(append(s.Fields(), field))
}

// WithoutField derives a new schema lacking the named field.
func (s Schema) WithoutField(name string) (Schema, error) {
	i, ok := s.byName[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}

	fields := s.Fields()
	return NewSchema(append(fields[:i], fields[i+1:]...))
}
