package GrainDB

import (
	"time"

	"github.com/nickyhof/GrainDB/db"
	"github.com/nickyhof/GrainDB/ps"
)

type Instance struct {
	Persistence *ps.Persistence
}

func Open(persistence *ps.Persistence) *Instance {
	return &Instance{
		Persistence: persistence,
	}
}

// Engine recovers the database state and returns an engine ready to
// execute statements.
func (instance *Instance) Engine() (*db.Engine, error) {
	return db.NewEngine(instance.Persistence)
}

// EngineWithOptions is Engine with explicit scan tuning.
func (instance *Instance) EngineWithOptions(options db.Options) (*db.Engine, error) {
	return db.NewEngineWithOptions(instance.Persistence, options)
}

// Checkpoints lists every checkpoint taken so far, newest first.
func (instance *Instance) Checkpoints() ([]ps.Checkpoint, error) {
	return instance.Persistence.Checkpoints()
}

// StateAt reconstructs the tables as they were checkpointed at or before
// the given time.
func (instance *Instance) StateAt(when time.Time) (*ps.State, error) {
	return instance.Persistence.LoadAt(when)
}
