package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"main/internal/ledger"
)

// Snapshot is the persisted process state: the full ledger plus the
// last stream sequence applied to it. On restart the ledger resumes
// from here instead of re-deriving everything from exchange queries.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	LastSeq   uint64          `json:"lastSeq"`
	Ledger    ledger.Snapshot `json:"ledger"`
}

// NewSnapshot captures the ledger at the given sequence.
func NewSnapshot(l *ledger.Ledger, lastSeq uint64) Snapshot {
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		LastSeq:   lastSeq,
		Ledger:    l.Export(),
	}
}

// WriteSnapshot writes a snapshot to disk as JSON. The file is written
// to a temp path first so a crash mid-write never corrupts the last
// good snapshot.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Recover restores the ledger from the snapshot at path. A missing
// file is not an error; the ledger starts empty and the first resync
// establishes state from exchange queries.
func Recover(path string, l *ledger.Ledger) (lastSeq uint64, recovered bool, err error) {
	if path == "" {
		return 0, false, nil
	}
	snap, err := ReadSnapshot(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	l.Restore(snap.Ledger)
	return snap.LastSeq, true, nil
}
