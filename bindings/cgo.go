package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"sync"
	"unsafe"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/db"
	"github.com/nickyhof/GrainDB/ps"
)

// Handle represents an open database instance
type Handle struct {
	persistence *ps.Persistence
	engine      *db.Engine
}

var (
	handleMu   sync.Mutex
	handles    = make(map[int]*Handle)
	nextHandle = 1
)

type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type QueryResponse struct {
	Columns         []string   `json:"columns"`
	Data            [][]string `json:"data"`
	RecordsRead     int        `json:"records_read"`
	ExecutionTimeMs float64    `json:"execution_time_ms"`
}

type CommitResponse struct {
	TablesCreated   int     `json:"tables_created,omitempty"`
	TablesDeleted   int     `json:"tables_deleted,omitempty"`
	TablesAltered   int     `json:"tables_altered,omitempty"`
	IndexesCreated  int     `json:"indexes_created,omitempty"`
	IndexesDeleted  int     `json:"indexes_deleted,omitempty"`
	RecordsWritten  int     `json:"records_written,omitempty"`
	RecordsDeleted  int     `json:"records_deleted,omitempty"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

var bindingIdentity = core.Identity{Name: "GrainDB Bindings", Email: "bindings@graindb.local"}

func register(persistence *ps.Persistence) C.int {
	engine, err := db.NewEngine(persistence)
	if err != nil {
		persistence.Close()
		return -1
	}

	handleMu.Lock()
	defer handleMu.Unlock()
	handle := nextHandle
	nextHandle++
	handles[handle] = &Handle{persistence: persistence, engine: engine}
	return C.int(handle)
}

//export graindb_open_memory
func graindb_open_memory() C.int {
	persistence, err := ps.NewMemoryPersistence(bindingIdentity)
	if err != nil {
		return -1
	}
	return register(persistence)
}

//export graindb_open_file
func graindb_open_file(path *C.char) C.int {
	persistence, err := ps.NewFilePersistence(C.GoString(path), bindingIdentity, ps.SyncAlways)
	if err != nil {
		return -1
	}
	return register(persistence)
}

//export graindb_close
func graindb_close(handle C.int) {
	handleMu.Lock()
	h, ok := handles[int(handle)]
	delete(handles, int(handle))
	handleMu.Unlock()

	if ok {
		h.engine.Close()
		h.persistence.Close()
	}
}

//export graindb_checkpoint
func graindb_checkpoint(handle C.int) C.int {
	handleMu.Lock()
	h, ok := handles[int(handle)]
	handleMu.Unlock()
	if !ok {
		return -1
	}
	if _, err := h.engine.Checkpoint(); err != nil {
		return -1
	}
	return 0
}

//export graindb_execute
func graindb_execute(handle C.int, query *C.char) *C.char {
	handleMu.Lock()
	h, ok := handles[int(handle)]
	handleMu.Unlock()
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	result, err := h.engine.Execute(context.Background(), C.GoString(query))
	if err != nil {
		return makeErrorResponse(err.Error())
	}

	var resp Response

	switch r := result.(type) {
	case db.QueryResult:
		data := make([][]string, len(r.Rows))
		for i, row := range r.Rows {
			data[i] = make([]string, len(row))
			for j, value := range row {
				data[i][j] = value.String()
			}
		}
		encoded, _ := json.Marshal(QueryResponse{
			Columns:         r.Columns,
			Data:            data,
			RecordsRead:     r.RecordsRead,
			ExecutionTimeMs: r.ExecutionTimeSec * 1000,
		})
		resp = Response{Success: true, Type: "query", Result: encoded}

	case db.CommitResult:
		encoded, _ := json.Marshal(CommitResponse{
			TablesCreated:   r.TablesCreated,
			TablesDeleted:   r.TablesDeleted,
			TablesAltered:   r.TablesAltered,
			IndexesCreated:  r.IndexesCreated,
			IndexesDeleted:  r.IndexesDeleted,
			RecordsWritten:  r.RecordsWritten,
			RecordsDeleted:  r.RecordsDeleted,
			ExecutionTimeMs: r.ExecutionTimeSec * 1000,
		})
		resp = Response{Success: true, Type: "commit", Result: encoded}

	default:
		resp = Response{Success: true, Type: "unknown"}
	}

	jsonData, _ := json.Marshal(resp)
	return C.CString(string(jsonData))
}

//export graindb_free
func graindb_free(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

func makeErrorResponse(msg string) *C.char {
	resp := Response{Success: false, Error: msg}
	jsonData, _ := json.Marshal(resp)
	return C.CString(string(jsonData))
}

func main() {}
