package exec

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/idx"
	"github.com/nickyhof/GrainDB/sql"
	"github.com/nickyhof/GrainDB/store"
)

const defaultChunkSize = 4096

// Catalog resolves table names to their backing tables.
type Catalog interface {
	Table(name string) (*store.Table, error)
}

// Executor runs SELECT statements against a catalog. Base table scans
// consult the index manager first and fall back to a chunked scan on a
// shared worker pool.
type Executor struct {
	indexes   *idx.Manager
	pool      *ants.Pool
	chunkSize int
}

// NewExecutor builds an executor over a pool of the given size. A
// chunkSize of zero picks the default chunking for parallel scans.
func NewExecutor(indexes *idx.Manager, workers, chunkSize int) (*Executor, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating scan pool: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Executor{indexes: indexes, pool: pool, chunkSize: chunkSize}, nil
}

func (executor *Executor) Close() {
	executor.pool.Release()
}

// Select runs a single SELECT statement and materializes the result. The
// statement executes against one snapshot per referenced table, so
// concurrent writers never affect a query in flight.
func (executor *Executor) Select(ctx context.Context, catalog Catalog, statement sql.SelectStatement) (*Rowset, error) {
	rel, err := executor.source(ctx, catalog, statement)
	if err != nil {
		return nil, err
	}

	if len(statement.Aggregates) > 0 || len(statement.GroupBy) > 0 {
		rel, err = aggregate(rel, statement)
		if err != nil {
			return nil, err
		}
	} else {
		if len(statement.Columns) > 0 {
			rel, err = rel.project(statement.Columns)
			if err != nil {
				return nil, err
			}
		}
		if statement.Distinct {
			rel = distinct(rel)
		}
	}

	if err := orderBy(rel, statement.OrderBy); err != nil {
		return nil, err
	}
	if err := limitOffset(rel, statement.Limit, statement.Offset); err != nil {
		return nil, err
	}

	return rel.rowset()
}

// source produces the filtered, joined input relation. Without joins the
// WHERE predicate is evaluated during the base scan, where indexes can
// narrow the candidate set; with joins it runs over the joined rows.
func (executor *Executor) source(ctx context.Context, catalog Catalog, statement sql.SelectStatement) (*relation, error) {
	table, err := catalog.Table(statement.Table)
	if err != nil {
		return nil, err
	}
	snap := table.Snapshot()
	qualifier := statement.Table
	if statement.Alias != "" {
		qualifier = statement.Alias
	}

	if len(statement.Joins) == 0 {
		positions, err := executor.scan(ctx, statement.Table, snap, qualifier, statement.Where)
		if err != nil {
			return nil, err
		}
		return fromSnapshot(snap, qualifier, positions)
	}

	positions, err := executor.scan(ctx, statement.Table, snap, qualifier, nil)
	if err != nil {
		return nil, err
	}
	rel, err := fromSnapshot(snap, qualifier, positions)
	if err != nil {
		return nil, err
	}

	for _, join := range statement.Joins {
		joined, err := catalog.Table(join.Table)
		if err != nil {
			return nil, err
		}
		rel, err = hashJoin(rel, joined.Snapshot(), join)
		if err != nil {
			return nil, err
		}
	}

	if statement.Where != nil {
		pred, err := compilePredicate(statement.Where, rel)
		if err != nil {
			return nil, err
		}
		kept := rel.rows[:0:0]
		for _, row := range rel.rows {
			if pred.eval(row) == triTrue {
				kept = append(kept, row)
			}
		}
		rel.rows = kept
	}

	return rel, nil
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrCancelled, err)
	}
	return nil
}
