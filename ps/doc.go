// Package ps provides the persistence layer for GrainDB.
//
// Durability combines two mechanisms. A write-ahead log records every
// mutation before it touches in-memory state, and checkpoints capture the
// full database as Parquet-encoded tables committed into a Git object
// store via go-git. Recovery loads the newest checkpoint and replays the
// log records appended after it.
//
// # Memory Persistence
//
// For testing or ephemeral databases:
//
//	persistence, err := ps.NewMemoryPersistence(identity)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Persistence
//
// For persistent storage:
//
//	persistence, err := ps.NewFilePersistence("/path/to/data", identity, ps.SyncAlways)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Checkpoints
//
// Every checkpoint is a Git commit, so history accumulates naturally and
// any earlier checkpoint can be reconstructed:
//
//	checkpoint, _ := persistence.CommitCheckpoint(tables, indexes, seq)
//	state, _ := persistence.LoadAt(someEarlierTime)
//
// # Write-Ahead Log
//
// The log lives beside the repository and is truncated at each
// checkpoint. Frames carry an xxhash checksum; replay stops at the first
// torn or corrupt frame, so a crash mid-write loses at most the record
// being appended.
package ps
