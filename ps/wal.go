package ps

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-billy/v6"
)

// OpKind identifies the mutation a log record describes.
type OpKind uint8

const (
	OpInsert OpKind = iota + 1
	OpUpdate
	OpDelete
	OpCreateTable
	OpDropTable
	OpCreateIndex
	OpDropIndex
	OpAddColumn
	OpDropColumn
)

// Record is one durable log entry. Data carries the operation payload as
// JSON; the log does not interpret it.
type Record struct {
	Seq   uint64          `json:"seq"`
	When  int64           `json:"when"`
	Op    OpKind          `json:"op"`
	Table string          `json:"table"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Each frame is a 4-byte big-endian length, an 8-byte xxhash of the record
// bytes, then the JSON-encoded record. A frame that fails either check
// marks the end of the usable log.
const frameHeaderSize = 12

// Frames larger than this are treated as corruption rather than decoded.
const maxFrameSize = 64 << 20

var ErrWALClosed = errors.New("write-ahead log is closed")

// SyncMode controls when appended frames are flushed to stable storage.
type SyncMode uint8

const (
	// SyncAlways flushes every append before acknowledging it, so an
	// acknowledged record survives a crash.
	SyncAlways SyncMode = iota
	// SyncNever leaves flushing to the operating system. A crash can lose
	// acknowledged records still sitting in the page cache.
	SyncNever
)

// ParseSyncMode reads a mode from its configuration spelling.
func ParseSyncMode(name string) (SyncMode, error) {
	switch name {
	case "always", "":
		return SyncAlways, nil
	case "never":
		return SyncNever, nil
	}
	return SyncAlways, fmt.Errorf("unknown sync mode %q", name)
}

// WAL is an append-only operation log on a billy filesystem. Appends are
// serialized; Replay reads the log from the start and stops at the first
// torn or corrupt frame, so a crash mid-append loses at most the frame
// being written.
type WAL struct {
	fs       billy.Filesystem
	name     string
	syncMode SyncMode

	mu      sync.Mutex
	file    billy.File
	nextSeq uint64
	closed  bool
}

// OpenWAL opens or creates the log file and positions the sequence counter
// after the last intact record. A torn or corrupt tail left by a crash is
// cut off, so subsequent appends stay reachable by replay.
func OpenWAL(fs billy.Filesystem, name string, mode SyncMode) (*WAL, error) {
	wal := &WAL{fs: fs, name: name, syncMode: mode, nextSeq: 1}

	validSize, err := wal.validPrefixSize()
	if err != nil {
		return nil, err
	}

	file, err := fs.OpenFile(name, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", name, err)
	}
	if err := file.Truncate(validSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("trimming log tail: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, fmt.Errorf("seeking log end: %w", err)
	}
	wal.file = file
	return wal, nil
}

// validPrefixSize scans the log and returns the byte length of the intact
// frame prefix, advancing nextSeq past the last intact record.
func (wal *WAL) validPrefixSize() (int64, error) {
	file, err := wal.fs.Open(wal.name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("opening log %s: %w", wal.name, err)
	}
	defer file.Close()

	size := int64(0)
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(file, header); err != nil {
			return size, nil
		}
		length := binary.BigEndian.Uint32(header[0:4])
		sum := binary.BigEndian.Uint64(header[4:12])
		if length > maxFrameSize {
			return size, nil
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(file, payload); err != nil {
			return size, nil
		}
		if xxhash.Sum64(payload) != sum {
			return size, nil
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return size, nil
		}
		wal.nextSeq = record.Seq + 1
		size += int64(frameHeaderSize) + int64(length)
	}
}

// Append writes one record and returns it with its assigned sequence
// number. The record is on its way to disk before the caller mutates any
// in-memory state.
func (wal *WAL) Append(op OpKind, table string, when int64, data json.RawMessage) (Record, error) {
	wal.mu.Lock()
	defer wal.mu.Unlock()

	if wal.closed {
		return Record{}, ErrWALClosed
	}

	record := Record{Seq: wal.nextSeq, When: when, Op: op, Table: table, Data: data}
	frame, err := encodeFrame(record)
	if err != nil {
		return Record{}, err
	}

	if _, err := wal.file.Write(frame); err != nil {
		return Record{}, fmt.Errorf("appending log record %d: %w", record.Seq, err)
	}
	if err := wal.flush(wal.file); err != nil {
		return Record{}, fmt.Errorf("syncing log record %d: %w", record.Seq, err)
	}

	wal.nextSeq++
	return record, nil
}

// flush pushes written frames to stable storage under SyncAlways. In-memory
// filesystems have nothing to flush and their files assert false.
func (wal *WAL) flush(file billy.File) error {
	if wal.syncMode != SyncAlways {
		return nil
	}
	if syncer, ok := file.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

// NextSeq returns the sequence number the next append will receive.
func (wal *WAL) NextSeq() uint64 {
	wal.mu.Lock()
	defer wal.mu.Unlock()
	return wal.nextSeq
}

// Replay yields every intact record with Seq > afterSeq in log order. A
// corrupt or truncated tail ends iteration without an error; any earlier
// read failure is yielded once with a zero record.
func (wal *WAL) Replay(afterSeq uint64) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		file, err := wal.fs.Open(wal.name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			yield(Record{}, fmt.Errorf("opening log %s: %w", wal.name, err))
			return
		}
		defer file.Close()

		header := make([]byte, frameHeaderSize)
		for {
			if _, err := io.ReadFull(file, header); err != nil {
				// EOF here is a clean end; a partial header is a torn write.
				return
			}

			length := binary.BigEndian.Uint32(header[0:4])
			sum := binary.BigEndian.Uint64(header[4:12])
			if length > maxFrameSize {
				return
			}

			payload := make([]byte, length)
			if _, err := io.ReadFull(file, payload); err != nil {
				return
			}
			if xxhash.Sum64(payload) != sum {
				return
			}

			var record Record
			if err := json.Unmarshal(payload, &record); err != nil {
				return
			}
			if record.Seq <= afterSeq {
				continue
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

// ReplayToTimestamp yields every intact record with When at or before the
// given time, stopping at the first later record. Records append in time
// order, so the cut is a prefix.
func (wal *WAL) ReplayToTimestamp(when int64) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for record, err := range wal.Replay(0) {
			if err != nil {
				yield(record, err)
				return
			}
			if record.When > when {
				return
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

// Truncate discards every record with Seq <= uptoSeq, keeping the rest.
// Called after a checkpoint has made those records redundant.
func (wal *WAL) Truncate(uptoSeq uint64) error {
	wal.mu.Lock()
	defer wal.mu.Unlock()

	if wal.closed {
		return ErrWALClosed
	}

	var kept []Record
	for record, err := range wal.Replay(uptoSeq) {
		if err != nil {
			return err
		}
		kept = append(kept, record)
	}

	if err := wal.file.Close(); err != nil {
		return fmt.Errorf("closing log for truncation: %w", err)
	}

	tmpName := wal.name + ".tmp"
	tmp, err := wal.fs.OpenFile(tmpName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpName, err)
	}
	for _, record := range kept {
		frame, err := encodeFrame(record)
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := tmp.Write(frame); err != nil {
			tmp.Close()
			return fmt.Errorf("rewriting log: %w", err)
		}
	}
	if err := wal.flush(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := wal.fs.Rename(tmpName, wal.name); err != nil {
		return fmt.Errorf("replacing log: %w", err)
	}

	file, err := wal.fs.OpenFile(wal.name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("reopening log: %w", err)
	}
	wal.file = file
	return nil
}

func encodeFrame(record Record) ([]byte, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding log record %d: %w", record.Seq, err)
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint64(frame[4:12], xxhash.Sum64(payload))
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}

func (wal *WAL) Close() error {
	wal.mu.Lock()
	defer wal.mu.Unlock()

	if wal.closed {
		return nil
	}
	wal.closed = true
	return wal.file.Close()
}
