// Package exec runs SELECT statements against columnar tables.
//
// The Executor takes a parsed statement and a Catalog, snapshots each
// referenced table once, and pipelines the rows through filtering,
// joining, aggregation, ordering and limiting stages into a Rowset.
//
// # Predicates
//
// WHERE and HAVING predicates evaluate under SQL three-valued logic: a
// comparison against null is neither true nor false, and only rows whose
// predicate is definitely true survive. Base table scans consult the
// index manager before falling back to a full scan; index candidates are
// always re-verified against the complete predicate, so an index can
// speed a query up but never change its result.
//
// # Joins
//
// Joins are hash joins keyed on the ON equality. INNER, LEFT, RIGHT and
// FULL OUTER are supported; null join keys never match on either side,
// and the non-matching side of an outer join is padded with nulls.
//
// # Scans
//
// Full scans over large snapshots split into chunks that run on a shared
// worker pool. Chunk results concatenate in order, so parallelism does
// not perturb row order. Scans honor context cancellation.
package exec
