package core

import "errors"

// Schema errors.
var (
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrNullViolation  = errors.New("null value in non-nullable column")
	ErrOutOfRange     = errors.New("row position out of range")
)

// Query errors. The executor returns these wrapped with context; it never
// retries on the caller's behalf.
var (
	ErrUnknownTable        = errors.New("unknown table")
	ErrUnknownColumn       = errors.New("unknown column")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrInvalidPredicate    = errors.New("invalid predicate")
	ErrJoinKeyTypeMismatch = errors.New("join key type mismatch")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// Index errors.
var (
	ErrIndexNotFound = errors.New("index not found")
	ErrIndexExists   = errors.New("index already exists")
)

// ErrCancelled is returned by long-running scans when the caller's context
// is done; partially produced results are discarded.
var ErrCancelled = errors.New("query cancelled")
