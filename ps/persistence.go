package ps

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"

	"github.com/nickyhof/GrainDB/core"
	"github.com/nickyhof/GrainDB/store"
)

var (
	ErrNotInitialized = errors.New("persistence layer not initialized")
	ErrNoCheckpoint   = errors.New("no checkpoint available")
)

const walName = "wal.log"

// Persistence stores durable state as git commits of Parquet-encoded
// tables plus a write-ahead log for everything since the last checkpoint.
// Every checkpoint is a commit, so the full checkpoint history stays
// addressable for point-in-time loads.
type Persistence struct {
	repo     *git.Repository
	wal      *WAL
	identity core.Identity
	mu       sync.Mutex
}

// IndexDef describes an index so recovery can rebuild it.
type IndexDef struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Kind    string   `json:"kind"`
}

// State is the tables and index definitions reconstructed from a
// checkpoint. Seq is the last log sequence the checkpoint covers.
type State struct {
	Tables  map[string]*store.Table
	Indexes []IndexDef
	Seq     uint64
}

// Checkpoint identifies one committed checkpoint.
type Checkpoint struct {
	Id   string
	When time.Time
	Seq  uint64
}

type checkpointMeta struct {
	Seq  uint64 `json:"seq"`
	When int64  `json:"when"`
}

func (persistence *Persistence) IsInitialized() bool {
	return persistence != nil && persistence.repo != nil && persistence.wal != nil
}

func (persistence *Persistence) ensureInitialized() error {
	if !persistence.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

// NewMemoryPersistence keeps the repository and log entirely in memory.
func NewMemoryPersistence(identity core.Identity) (*Persistence, error) {
	wt := memfs.New()
	storer := memory.NewStorage()

	repo, err := git.Init(storer, git.WithWorkTree(wt))
	if err != nil {
		return nil, err
	}

	wal, err := OpenWAL(memfs.New(), walName, SyncNever)
	if err != nil {
		return nil, err
	}

	return &Persistence{repo: repo, wal: wal, identity: identity}, nil
}

// NewFilePersistence stores the repository under baseDir/.git and the
// write-ahead log next to it. An existing repository is reopened, so a
// restart picks up where the last process left off. The sync mode sets
// whether log appends flush before they are acknowledged.
func NewFilePersistence(baseDir string, identity core.Identity, mode SyncMode) (*Persistence, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	wt := osfs.New(baseDir)
	fs, err := wt.Chroot(".git")
	if err != nil {
		return nil, err
	}

	storer := filesystem.NewStorageWithOptions(
		fs,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	var repo *git.Repository
	if _, statErr := os.Stat(fs.Root()); statErr != nil {
		repo, err = git.Init(storer, git.WithWorkTree(wt))
	} else {
		repo, err = git.Open(storer, wt)
	}
	if err != nil {
		return nil, err
	}

	wal, err := OpenWAL(wt, walName, mode)
	if err != nil {
		return nil, err
	}

	return &Persistence{repo: repo, wal: wal, identity: identity}, nil
}

// Log appends one operation record to the write-ahead log. Callers append
// before touching in-memory state.
func (persistence *Persistence) Log(op OpKind, table string, data json.RawMessage) (Record, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return Record{}, err
	}
	return persistence.wal.Append(op, table, time.Now().UnixNano(), data)
}

// LastSeq returns the sequence number of the most recent log record.
func (persistence *Persistence) LastSeq() uint64 {
	if !persistence.IsInitialized() {
		return 0
	}
	return persistence.wal.NextSeq() - 1
}

// CommitCheckpoint writes every table as a Parquet blob, commits the lot,
// and drops the log records the checkpoint made redundant.
func (persistence *Persistence) CommitCheckpoint(tables map[string]*store.Table, indexes []IndexDef, seq uint64) (Checkpoint, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return Checkpoint{}, err
	}
	persistence.mu.Lock()
	defer persistence.mu.Unlock()

	now := time.Now()
	files := make(map[string]plumbing.Hash)

	add := func(filePath string, data []byte) error {
		blobHash, err := persistence.createBlob(data)
		if err != nil {
			return err
		}
		files[filePath] = blobHash
		return nil
	}

	for name, table := range tables {
		snap := table.Snapshot()
		encoded, err := encodeSnapshot(snap)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("encoding table %s: %w", name, err)
		}
		if err := add("tables/"+name+".parquet", encoded); err != nil {
			return Checkpoint{}, err
		}
		schemaJSON, err := json.Marshal(snap.Schema().Fields())
		if err != nil {
			return Checkpoint{}, fmt.Errorf("encoding schema for %s: %w", name, err)
		}
		if err := add("tables/"+name+".schema.json", schemaJSON); err != nil {
			return Checkpoint{}, err
		}
	}

	indexJSON, err := json.Marshal(indexes)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("encoding index definitions: %w", err)
	}
	if err := add("indexes.json", indexJSON); err != nil {
		return Checkpoint{}, err
	}

	metaJSON, err := json.Marshal(checkpointMeta{Seq: seq, When: now.UnixNano()})
	if err != nil {
		return Checkpoint{}, err
	}
	if err := add("meta.json", metaJSON); err != nil {
		return Checkpoint{}, err
	}

	treeHash, err := persistence.buildTree(files)
	if err != nil {
		return Checkpoint{}, err
	}
	commitHash, err := persistence.createCommit(treeHash, fmt.Sprintf("checkpoint through sequence %d", seq), now)
	if err != nil {
		return Checkpoint{}, err
	}

	if err := persistence.wal.Truncate(seq); err != nil {
		return Checkpoint{}, fmt.Errorf("truncating log after checkpoint: %w", err)
	}

	return Checkpoint{Id: commitHash.String(), When: now, Seq: seq}, nil
}

// Persist commits a single table's current snapshot, carrying every other
// file of the latest checkpoint forward unchanged.
func (persistence *Persistence) Persist(name string, table *store.Table) error {
	if err := persistence.ensureInitialized(); err != nil {
		return err
	}
	persistence.mu.Lock()
	defer persistence.mu.Unlock()

	files := make(map[string]plumbing.Hash)
	if commit, err := persistence.headCommit(); err == nil {
		fileIter, err := commit.Files()
		if err != nil {
			return err
		}
		err = fileIter.ForEach(func(file *object.File) error {
			files[file.Name] = file.Hash
			return nil
		})
		if err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNoCheckpoint) {
		return err
	}

	now := time.Now()
	snap := table.Snapshot()

	encoded, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding table %s: %w", name, err)
	}
	blobHash, err := persistence.createBlob(encoded)
	if err != nil {
		return err
	}
	files["tables/"+name+".parquet"] = blobHash

	schemaJSON, err := json.Marshal(snap.Schema().Fields())
	if err != nil {
		return err
	}
	if blobHash, err = persistence.createBlob(schemaJSON); err != nil {
		return err
	}
	files["tables/"+name+".schema.json"] = blobHash

	metaJSON, err := json.Marshal(checkpointMeta{Seq: persistence.wal.NextSeq() - 1, When: now.UnixNano()})
	if err != nil {
		return err
	}
	if blobHash, err = persistence.createBlob(metaJSON); err != nil {
		return err
	}
	files["meta.json"] = blobHash

	treeHash, err := persistence.buildTree(files)
	if err != nil {
		return err
	}
	_, err = persistence.createCommit(treeHash, fmt.Sprintf("persist table %s", name), now)
	return err
}

// RecoverTable loads one table from the latest checkpoint, ignoring the
// write-ahead log.
func (persistence *Persistence) RecoverTable(name string) (*store.Table, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return nil, err
	}
	persistence.mu.Lock()
	defer persistence.mu.Unlock()

	commit, err := persistence.headCommit()
	if err != nil {
		return nil, err
	}

	schemaJSON, err := readCommitFile(commit, "tables/"+name+".schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTable, name)
	}
	var fields []core.Field
	if err := json.Unmarshal(schemaJSON, &fields); err != nil {
		return nil, fmt.Errorf("decoding schema for %s: %w", name, err)
	}
	schema, err := core.NewSchema(fields)
	if err != nil {
		return nil, err
	}

	encoded, err := readCommitFile(commit, "tables/"+name+".parquet")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTable, name)
	}
	return decodeTable(schema, encoded)
}

// Recover loads the latest checkpoint and the log records appended after
// it. Without any checkpoint, the state is empty and the whole log
// replays.
func (persistence *Persistence) Recover() (*State, []Record, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return nil, nil, err
	}
	persistence.mu.Lock()
	defer persistence.mu.Unlock()

	state := &State{Tables: make(map[string]*store.Table)}

	commit, err := persistence.headCommit()
	if err == nil {
		state, err = loadState(commit)
		if err != nil {
			return nil, nil, err
		}
	} else if !errors.Is(err, ErrNoCheckpoint) {
		return nil, nil, err
	}

	var records []Record
	for record, err := range persistence.wal.Replay(state.Seq) {
		if err != nil {
			return nil, nil, err
		}
		records = append(records, record)
	}
	return state, records, nil
}

// LoadAt reconstructs the newest checkpoint taken at or before the given
// time. Log records after that checkpoint are not applied.
func (persistence *Persistence) LoadAt(when time.Time) (*State, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return nil, err
	}
	persistence.mu.Lock()
	defer persistence.mu.Unlock()

	commits, err := persistence.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, ErrNoCheckpoint
	}
	defer commits.Close()

	for {
		commit, err := commits.Next()
		if err != nil {
			return nil, ErrNoCheckpoint
		}
		if !commit.Committer.When.After(when) {
			return loadState(commit)
		}
	}
}

// Checkpoints lists every checkpoint, newest first.
func (persistence *Persistence) Checkpoints() ([]Checkpoint, error) {
	if err := persistence.ensureInitialized(); err != nil {
		return nil, err
	}

	commits, err := persistence.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, nil
	}
	defer commits.Close()

	var checkpoints []Checkpoint
	for {
		commit, err := commits.Next()
		if err != nil {
			return checkpoints, nil
		}
		checkpoint := Checkpoint{Id: commit.Hash.String(), When: commit.Committer.When}
		if metaJSON, err := readCommitFile(commit, "meta.json"); err == nil {
			var meta checkpointMeta
			if json.Unmarshal(metaJSON, &meta) == nil {
				checkpoint.Seq = meta.Seq
			}
		}
		checkpoints = append(checkpoints, checkpoint)
	}
}

func (persistence *Persistence) Close() error {
	if !persistence.IsInitialized() {
		return nil
	}
	return persistence.wal.Close()
}

func loadState(commit *object.Commit) (*State, error) {
	state := &State{Tables: make(map[string]*store.Table)}

	metaJSON, err := readCommitFile(commit, "meta.json")
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s has no metadata: %w", commit.Hash, err)
	}
	var meta checkpointMeta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("decoding checkpoint metadata: %w", err)
	}
	state.Seq = meta.Seq

	if indexJSON, err := readCommitFile(commit, "indexes.json"); err == nil {
		if err := json.Unmarshal(indexJSON, &state.Indexes); err != nil {
			return nil, fmt.Errorf("decoding index definitions: %w", err)
		}
	}

	names, err := listCommitDir(commit, "tables")
	if err != nil {
		return nil, err
	}
	for _, fileName := range names {
		name, ok := strings.CutSuffix(fileName, ".parquet")
		if !ok {
			continue
		}

		schemaJSON, err := readCommitFile(commit, "tables/"+name+".schema.json")
		if err != nil {
			return nil, fmt.Errorf("checkpoint is missing schema for %s: %w", name, err)
		}
		var fields []core.Field
		if err := json.Unmarshal(schemaJSON, &fields); err != nil {
			return nil, fmt.Errorf("decoding schema for %s: %w", name, err)
		}
		schema, err := core.NewSchema(fields)
		if err != nil {
			return nil, fmt.Errorf("rebuilding schema for %s: %w", name, err)
		}

		encoded, err := readCommitFile(commit, "tables/"+name+".parquet")
		if err != nil {
			return nil, err
		}
		table, err := decodeTable(schema, encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding table %s: %w", name, err)
		}
		state.Tables[name] = table
	}

	return state, nil
}
