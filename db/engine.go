package db

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/exec"
	"github.com/nickyhof/GrainDB/idx"
	"github.com/nickyhof/GrainDB/ps"
	"github.com/nickyhof/GrainDB/sql"
	"github.com/nickyhof/GrainDB/store"
)

const planCacheSize = 256

// Engine ties the catalog, executor, indexes and persistence together.
// Queries run concurrently against snapshots; mutations serialize on the
// engine and hit the write-ahead log before any in-memory state changes.
type Engine struct {
	registry    *Registry
	indexes     *idx.Manager
	executor    *exec.Executor
	persistence *ps.Persistence
	plans       *lru.Cache[string, sql.Statement]

	// writeMu keeps log order equal to apply order across mutations.
	writeMu sync.Mutex
}

// walPayload is the logical log format: mutations replay by re-executing
// their statement text.
type walPayload struct {
	Query string `json:"query"`
}

// Options tunes the engine's scan parallelism. Zero values pick the
// defaults.
type Options struct {
	// Workers is the scan pool size, defaulting to the CPU count.
	Workers int
	// ChunkSize is the number of rows per parallel scan chunk.
	ChunkSize int
}

// NewEngine recovers the database from the persistence layer: the latest
// checkpoint is loaded, its indexes rebuilt, and every log record after
// the checkpoint re-applied.
func NewEngine(persistence *ps.Persistence) (*Engine, error) {
	return NewEngineWithOptions(persistence, Options{})
}

// NewEngineWithOptions is NewEngine with explicit scan tuning.
func NewEngineWithOptions(persistence *ps.Persistence, options Options) (*Engine, error) {
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	indexes := idx.NewManager()
	executor, err := exec.NewExecutor(indexes, workers, options.ChunkSize)
	if err != nil {
		return nil, err
	}
	plans, err := lru.New[string, sql.Statement](planCacheSize)
	if err != nil {
		executor.Close()
		return nil, err
	}

	engine := &Engine{
		registry:    NewRegistry(),
		indexes:     indexes,
		executor:    executor,
		persistence: persistence,
		plans:       plans,
	}
	if err := engine.recover(); err != nil {
		executor.Close()
		return nil, err
	}
	return engine, nil
}

func (engine *Engine) Close() {
	engine.executor.Close()
}

func (engine *Engine) recover() error {
	state, records, err := engine.persistence.Recover()
	if err != nil {
		return err
	}

	for name, table := range state.Tables {
		if err := engine.registry.Create(name, table); err != nil {
			return err
		}
	}
	for _, def := range state.Indexes {
		if err := engine.createIndexFromDef(def); err != nil {
			return fmt.Errorf("rebuilding index on %s: %w", def.Table, err)
		}
	}

	for _, record := range records {
		var payload walPayload
		if err := json.Unmarshal(record.Data, &payload); err != nil {
			return fmt.Errorf("decoding log record %d: %w", record.Seq, err)
		}
		statement, err := engine.parse(payload.Query)
		if err != nil {
			return fmt.Errorf("replaying log record %d: %w", record.Seq, err)
		}
		if _, err := engine.applyMutation(statement, payload.Query, false); err != nil {
			return fmt.Errorf("replaying log record %d: %w", record.Seq, err)
		}
	}
	return nil
}

func (engine *Engine) createIndexFromDef(def ps.IndexDef) error {
	table, err := engine.registry.Table(def.Table)
	if err != nil {
		return err
	}
	snap := table.Snapshot()
	if len(def.Columns) > 1 {
		return engine.indexes.CreateCompositeIndex(def.Table, def.Columns, snap)
	}
	if def.Kind == "ordered" {
		return engine.indexes.CreateOrderedIndex(def.Table, def.Columns[0], snap)
	}
	return engine.indexes.CreateHashIndex(def.Table, def.Columns[0], snap)
}

func (engine *Engine) parse(query string) (sql.Statement, error) {
	if statement, ok := engine.plans.Get(query); ok {
		return statement, nil
	}
	statement, err := sql.NewParser(query).Parse()
	if err != nil {
		return nil, err
	}
	engine.plans.Add(query, statement)
	return statement, nil
}

// Execute parses and runs one statement. Reads run on the executor;
// everything else is a mutation that logs before applying.
func (engine *Engine) Execute(ctx context.Context, query string) (Result, error) {
	statement, err := engine.parse(query)
	if err != nil {
		return nil, err
	}

	if statement.Type() == sql.SelectStatementType {
		return engine.executeSelect(ctx, statement.(sql.SelectStatement))
	}
	return engine.applyMutation(statement, query, true)
}

func (engine *Engine) executeSelect(ctx context.Context, statement sql.SelectStatement) (Result, error) {
	startTime := time.Now()

	rowset, err := engine.executor.Select(ctx, engine.registry, statement)
	if err != nil {
		return nil, err
	}

	columns := make([]string, rowset.Schema.Len())
	for i := 0; i < rowset.Schema.Len(); i++ {
		columns[i] = rowset.Schema.Field(i).Name
	}
	return QueryResult{
		Columns:          columns,
		Rows:             rowset.Rows,
		RecordsRead:      len(rowset.Rows),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
	}, nil
}

func (engine *Engine) applyMutation(statement sql.Statement, query string, log bool) (Result, error) {
	engine.writeMu.Lock()
	defer engine.writeMu.Unlock()

	startTime := time.Now()

	result, err := func() (CommitResult, error) {
		switch statement.Type() {
		case sql.InsertStatementType:
			return engine.executeInsert(statement.(sql.InsertStatement), query, log)
		case sql.UpdateStatementType:
			return engine.executeUpdate(statement.(sql.UpdateStatement), query, log)
		case sql.DeleteStatementType:
			return engine.executeDelete(statement.(sql.DeleteStatement), query, log)
		case sql.CreateTableStatementType:
			return engine.executeCreateTable(statement.(sql.CreateTableStatement), query, log)
		case sql.DropTableStatementType:
			return engine.executeDropTable(statement.(sql.DropTableStatement), query, log)
		case sql.CreateIndexStatementType:
			return engine.executeCreateIndex(statement.(sql.CreateIndexStatement), query, log)
		case sql.DropIndexStatementType:
			return engine.executeDropIndex(statement.(sql.DropIndexStatement), query, log)
		case sql.AlterTableStatementType:
			return engine.executeAlterTable(statement.(sql.AlterTableStatement), query, log)
		default:
			return CommitResult{}, fmt.Errorf("unsupported statement type: %v", statement.Type())
		}
	}()
	if err != nil {
		return nil, err
	}

	result.ExecutionTimeSec = time.Since(startTime).Seconds()
	return result, nil
}

func (engine *Engine) log(log bool, op ps.OpKind, table, query string) error {
	if !log {
		return nil
	}
	data, err := json.Marshal(walPayload{Query: query})
	if err != nil {
		return err
	}
	_, err = engine.persistence.Log(op, table, data)
	return err
}

func (engine *Engine) executeInsert(statement sql.InsertStatement, query string, log bool) (CommitResult, error) {
	table, err := engine.registry.Table(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}
	schema := table.Schema()

	// Resolve the column list and validate before logging anything.
	ordinals := make([]int, len(statement.Columns))
	for i, column := range statement.Columns {
		ordinal, ok := schema.Lookup(column)
		if !ok {
			return CommitResult{}, fmt.Errorf("%w: %s", core.ErrUnknownColumn, column)
		}
		ordinals[i] = ordinal
	}

	rows := make([][]core.Value, len(statement.Rows))
	for i, given := range statement.Rows {
		var row []core.Value
		if len(statement.Columns) == 0 {
			if len(given) != schema.Len() {
				return CommitResult{}, fmt.Errorf("%w: %d values for %d columns",
					core.ErrSchemaMismatch, len(given), schema.Len())
			}
			row = given
		} else {
			if len(given) != len(ordinals) {
				return CommitResult{}, fmt.Errorf("%w: %d values for %d named columns",
					core.ErrSchemaMismatch, len(given), len(ordinals))
			}
			row = make([]core.Value, schema.Len())
			for j := range row {
				row[j] = core.Null()
			}
			for j, ordinal := range ordinals {
				row[ordinal] = given[j]
			}
		}
		for j, value := range row {
			if _, ok := schema.Field(j).Accepts(value); !ok {
				if value.IsNull() {
					return CommitResult{}, fmt.Errorf("%w: column %s", core.ErrNullViolation, schema.Field(j).Name)
				}
				return CommitResult{}, fmt.Errorf("%w: column %s rejects %s",
					core.ErrTypeMismatch, schema.Field(j).Name, value)
			}
		}
		rows[i] = row
	}

	if err := engine.log(log, ps.OpInsert, statement.Table, query); err != nil {
		return CommitResult{}, err
	}

	for _, row := range rows {
		if err := table.AppendRow(row); err != nil {
			return CommitResult{}, err
		}
		engine.indexes.OnInsert(statement.Table, schema, row, table.Rows()-1, table.Version())
	}

	return CommitResult{RecordsWritten: len(rows)}, nil
}

func (engine *Engine) executeUpdate(statement sql.UpdateStatement, query string, log bool) (CommitResult, error) {
	table, err := engine.registry.Table(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}
	schema := table.Schema()

	setOrdinals := make([]int, len(statement.Sets))
	for i, set := range statement.Sets {
		ordinal, ok := schema.Lookup(set.Column)
		if !ok {
			return CommitResult{}, fmt.Errorf("%w: %s", core.ErrUnknownColumn, set.Column)
		}
		if _, ok := schema.Field(ordinal).Accepts(set.Value); !ok {
			if set.Value.IsNull() {
				return CommitResult{}, fmt.Errorf("%w: column %s", core.ErrNullViolation, set.Column)
			}
			return CommitResult{}, fmt.Errorf("%w: column %s rejects %s",
				core.ErrTypeMismatch, set.Column, set.Value)
		}
		setOrdinals[i] = ordinal
	}

	match, err := engine.compileMatch(statement.Where, schema, statement.Table)
	if err != nil {
		return CommitResult{}, err
	}

	if err := engine.log(log, ps.OpUpdate, statement.Table, query); err != nil {
		return CommitResult{}, err
	}

	count, err := table.Update(match, func(row []core.Value) []core.Value {
		for i, ordinal := range setOrdinals {
			row[ordinal] = statement.Sets[i].Value
		}
		return row
	})
	if err != nil {
		return CommitResult{}, err
	}
	if err := engine.indexes.Rebuild(statement.Table, table.Snapshot()); err != nil {
		return CommitResult{}, err
	}

	return CommitResult{RecordsWritten: count}, nil
}

func (engine *Engine) executeDelete(statement sql.DeleteStatement, query string, log bool) (CommitResult, error) {
	table, err := engine.registry.Table(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}

	match, err := engine.compileMatch(statement.Where, table.Schema(), statement.Table)
	if err != nil {
		return CommitResult{}, err
	}

	if err := engine.log(log, ps.OpDelete, statement.Table, query); err != nil {
		return CommitResult{}, err
	}

	count, err := table.Delete(match)
	if err != nil {
		return CommitResult{}, err
	}
	if err := engine.indexes.Rebuild(statement.Table, table.Snapshot()); err != nil {
		return CommitResult{}, err
	}

	return CommitResult{RecordsDeleted: count}, nil
}

func (engine *Engine) compileMatch(where sql.Expr, schema core.Schema, table string) (func(snap store.Snapshot, row int) bool, error) {
	if where == nil {
		return func(store.Snapshot, int) bool { return true }, nil
	}
	filter, err := exec.CompileFilter(where, schema, table)
	if err != nil {
		return nil, err
	}
	return func(snap store.Snapshot, row int) bool {
		values, err := snap.Row(row)
		if err != nil {
			return false
		}
		return filter(values)
	}, nil
}

func (engine *Engine) executeCreateTable(statement sql.CreateTableStatement, query string, log bool) (CommitResult, error) {
	schema, err := core.NewSchema(statement.Fields)
	if err != nil {
		return CommitResult{}, err
	}

	if err := engine.log(log, ps.OpCreateTable, statement.Table, query); err != nil {
		return CommitResult{}, err
	}
	if err := engine.registry.Create(statement.Table, store.New(schema)); err != nil {
		return CommitResult{}, err
	}
	engine.plans.Purge()

	return CommitResult{TablesCreated: 1}, nil
}

func (engine *Engine) executeDropTable(statement sql.DropTableStatement, query string, log bool) (CommitResult, error) {
	if _, err := engine.registry.Table(statement.Table); err != nil {
		return CommitResult{}, err
	}

	if err := engine.log(log, ps.OpDropTable, statement.Table, query); err != nil {
		return CommitResult{}, err
	}
	if err := engine.registry.Drop(statement.Table); err != nil {
		return CommitResult{}, err
	}
	engine.indexes.DropTable(statement.Table)
	engine.plans.Purge()

	return CommitResult{TablesDeleted: 1}, nil
}

func (engine *Engine) executeCreateIndex(statement sql.CreateIndexStatement, query string, log bool) (CommitResult, error) {
	table, err := engine.registry.Table(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}

	if err := engine.log(log, ps.OpCreateIndex, statement.Table, query); err != nil {
		return CommitResult{}, err
	}

	snap := table.Snapshot()
	if len(statement.Columns) > 1 {
		err = engine.indexes.CreateCompositeIndex(statement.Table, statement.Columns, snap)
	} else if statement.Kind == sql.OrderedIndexKind {
		err = engine.indexes.CreateOrderedIndex(statement.Table, statement.Columns[0], snap)
	} else {
		err = engine.indexes.CreateHashIndex(statement.Table, statement.Columns[0], snap)
	}
	if err != nil {
		return CommitResult{}, err
	}

	return CommitResult{IndexesCreated: 1}, nil
}

func (engine *Engine) executeDropIndex(statement sql.DropIndexStatement, query string, log bool) (CommitResult, error) {
	if err := engine.log(log, ps.OpDropIndex, statement.Table, query); err != nil {
		return CommitResult{}, err
	}
	if err := engine.indexes.DropIndex(statement.Table, statement.Column); err != nil {
		return CommitResult{}, err
	}
	return CommitResult{IndexesDeleted: 1}, nil
}

func (engine *Engine) executeAlterTable(statement sql.AlterTableStatement, query string, log bool) (CommitResult, error) {
	table, err := engine.registry.Table(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}

	op := ps.OpAddColumn
	if statement.Action == sql.DropColumnAction {
		op = ps.OpDropColumn
	}
	if err := engine.log(log, op, statement.Table, query); err != nil {
		return CommitResult{}, err
	}

	if statement.Action == sql.AddColumnAction {
		err = table.AddColumn(statement.Field.Name, statement.Field.Type, statement.Default)
	} else {
		err = table.DropColumn(statement.Column)
	}
	if err != nil {
		return CommitResult{}, err
	}

	// Indexes over a dropped column disappear during the rebuild.
	if err := engine.indexes.Rebuild(statement.Table, table.Snapshot()); err != nil {
		return CommitResult{}, err
	}
	engine.plans.Purge()

	return CommitResult{TablesAltered: 1}, nil
}

// Checkpoint persists the current state of every table and truncates the
// write-ahead log.
func (engine *Engine) Checkpoint() (ps.Checkpoint, error) {
	engine.writeMu.Lock()
	defer engine.writeMu.Unlock()

	var defs []ps.IndexDef
	for _, name := range engine.registry.Names() {
		columns := engine.indexes.Columns(name)
		sort.Strings(columns)
		for _, column := range columns {
			kind := "hash"
			if engine.indexes.Ordered(name, column) {
				kind = "ordered"
			}
			defs = append(defs, ps.IndexDef{Table: name, Columns: []string{column}, Kind: kind})
		}
		for _, set := range engine.indexes.CompositeColumns(name) {
			defs = append(defs, ps.IndexDef{Table: name, Columns: set, Kind: "hash"})
		}
	}

	return engine.persistence.CommitCheckpoint(engine.registry.All(), defs, engine.persistence.LastSeq())
}

// Tables lists the catalog's table names.
func (engine *Engine) Tables() []string {
	return engine.registry.Names()
}

// Schema returns a table's current schema.
func (engine *Engine) Schema(name string) (core.Schema, error) {
	table, err := engine.registry.Table(name)
	if err != nil {
		return core.Schema{}, err
	}
	return table.Schema(), nil
}
