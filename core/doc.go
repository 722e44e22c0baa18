// Package core provides core types used throughout GrainDB.
//
// The package defines fundamental types like Value, Field, Schema, Identity,
// and the error taxonomy shared by every layer.
//
// # Values
//
// Value is a tagged scalar: null, 64-bit integer, 64-bit float, or UTF-8
// string. Variant columns hold mixed kinds, one tag per element:
//
//	v := core.IntValue(42)
//	s := core.StringValue("grain")
//	n := core.Null()
//
// # Column Types
//
// Supported column types:
//   - IntType: 64-bit integers
//   - FloatType: 64-bit IEEE-754 floats
//   - StringType: UTF-8 strings
//   - VariantType: tagged union, mixed kinds per element
//
// # Schemas
//
//	schema, err := core.NewSchema([]core.Field{
//	    {Name: "id", Type: core.IntType},
//	    {Name: "tag", Type: core.StringType, Nullable: true},
//	})
//
// # Identity
//
// Identity identifies the author of snapshot commits:
//
//	identity := core.Identity{
//	    Name:  "John Doe",
//	    Email: "john@example.com",
//	}
package core
