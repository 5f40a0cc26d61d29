// Package submissions keeps an append-only journal of every transaction
// the wallet submitted and the ledger confirmed. Financial submissions
// are user-auditable; the journal is what makes them auditable.
package submissions

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultJournalDir   = "./wal/submissions"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	journalKeyPrefix    = "submission_"
)

// Record is one confirmed submission.
type Record struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	TxHash      string    `json:"tx_hash"`
	Ledger      int32     `json:"ledger"`
	Network     string    `json:"network"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// IndexedRecord bundles a record with its journal index for streaming.
type IndexedRecord struct {
	Index  uint64
	Record Record
}

// WALStore persists submission records in a WAL for audit and streaming.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed journal under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init submission journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes the record to the journal.
func (s *WALStore) Append(record Record) error {
	if s == nil || s.wal == nil {
		return errors.New("submission journal is not initialized")
	}
	if record.TxHash == "" {
		return errors.New("submission record requires a transaction hash")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal submission record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, journalKeyPrefix+record.ID, payload)
}

// RecordsAfter returns all records written after the provided index.
func (s *WALStore) RecordsAfter(index uint64) ([]IndexedRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("submission journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]IndexedRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, journalKeyPrefix) {
			continue
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode submission record")
		}
		records = append(records, IndexedRecord{Index: idx, Record: record})
	}

	return records, nil
}

// CurrentIndex returns the latest journal index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wal.CurrentIndex()
}

// Close releases the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
