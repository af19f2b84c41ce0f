package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
//
// Dataset names and file hashes are reserved under the store mutex when a
// transaction creates its dataset, so two concurrent ingestions of the same
// file or name cannot both succeed. Writes become visible at Commit.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	datasets map[int64]*DatasetMetadata
	byName   map[string]int64
	byHash   map[string]int64
	rows     map[int64][]DataRow
	index    map[int64][]ColumnIndexEntry

	// held by open transactions
	reservedNames  map[string]bool
	reservedHashes map[string]bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets:       make(map[int64]*DatasetMetadata),
		byName:         make(map[string]int64),
		byHash:         make(map[string]int64),
		rows:           make(map[int64][]DataRow),
		index:          make(map[int64][]ColumnIndexEntry),
		reservedNames:  make(map[string]bool),
		reservedHashes: make(map[string]bool),
	}
}

// Begin starts a transaction.
func (s *MemoryStore) Begin(ctx context.Context) (StoreTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{store: s}, nil
}

// DatasetByName looks a dataset up by name.
func (s *MemoryStore) DatasetByName(ctx context.Context, name string) (*DatasetMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
	}
	meta := *s.datasets[id]
	return &meta, nil
}

// DatasetByHash looks a dataset up by file hash.
func (s *MemoryStore) DatasetByHash(ctx context.Context, fileHash string) (*DatasetMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[fileHash]
	if !ok {
		return nil, ErrDatasetNotFound
	}
	meta := *s.datasets[id]
	return &meta, nil
}

// ListDatasets returns all committed datasets ordered by id.
func (s *MemoryStore) ListDatasets(ctx context.Context) ([]DatasetMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DatasetMetadata, 0, len(s.datasets))
	for _, meta := range s.datasets {
		out = append(out, *meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListRows returns a page of rows in row_number order.
func (s *MemoryStore) ListRows(ctx context.Context, datasetID int64, q RowQuery) ([]DataRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.rows[datasetID]
	out := make([]DataRow, 0)
	skipped := 0
	for _, r := range all {
		if q.ExcludeDuplicates && r.IsDuplicate {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

// ListColumnIndex returns the column index entries in column order.
func (s *MemoryStore) ListColumnIndex(ctx context.Context, datasetID int64) ([]ColumnIndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.index[datasetID]
	out := make([]ColumnIndexEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// DeleteDataset removes a dataset and everything it owns.
func (s *MemoryStore) DeleteDataset(ctx context.Context, name string) (*DatasetMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
	}
	meta := *s.datasets[id]

	delete(s.datasets, id)
	delete(s.byName, meta.Name)
	delete(s.byHash, meta.FileHash)
	delete(s.rows, id)
	delete(s.index, id)

	return &meta, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// memoryTx buffers one ingestion's writes until Commit.
type memoryTx struct {
	store *MemoryStore
	meta  *DatasetMetadata
	rows  []DataRow
	index []ColumnIndexEntry
	done  bool
}

var errTxDone = errors.New("transaction already closed")

func (tx *memoryTx) CreateDataset(ctx context.Context, meta *DatasetMetadata) error {
	if tx.done {
		return errTxDone
	}
	if tx.meta != nil {
		return errors.New("dataset already created in this transaction")
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[meta.FileHash]; ok || s.reservedHashes[meta.FileHash] {
		return fmt.Errorf("%w: file hash %s", ErrDuplicateFile, meta.FileHash)
	}
	if _, ok := s.byName[meta.Name]; ok || s.reservedNames[meta.Name] {
		return fmt.Errorf("%w: %q", ErrDuplicateName, meta.Name)
	}

	s.reservedHashes[meta.FileHash] = true
	s.reservedNames[meta.Name] = true
	s.nextID++
	meta.ID = s.nextID

	now := time.Now().UTC()
	if meta.UploadedAt.IsZero() {
		meta.UploadedAt = now
	}
	meta.LastModified = meta.UploadedAt

	copied := *meta
	tx.meta = &copied
	return nil
}

func (tx *memoryTx) InsertRows(ctx context.Context, rows []DataRow) error {
	if tx.done {
		return errTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.rows = append(tx.rows, rows...)
	return nil
}

func (tx *memoryTx) InsertColumnIndex(ctx context.Context, entries []ColumnIndexEntry) error {
	if tx.done {
		return errTxDone
	}
	tx.index = append(tx.index, entries...)
	return nil
}

func (tx *memoryTx) SetDuplicateCount(ctx context.Context, datasetID int64, count int) error {
	if tx.done {
		return errTxDone
	}
	if tx.meta == nil || tx.meta.ID != datasetID {
		return fmt.Errorf("%w: id %d", ErrDatasetNotFound, datasetID)
	}
	tx.meta.DuplicateCount = count
	tx.meta.LastModified = time.Now().UTC()
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return errTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.done = true

	if tx.meta == nil {
		return nil
	}
	id := tx.meta.ID
	delete(s.reservedHashes, tx.meta.FileHash)
	delete(s.reservedNames, tx.meta.Name)

	sort.SliceStable(tx.rows, func(i, j int) bool { return tx.rows[i].RowNumber < tx.rows[j].RowNumber })

	s.datasets[id] = tx.meta
	s.byName[tx.meta.Name] = id
	s.byHash[tx.meta.FileHash] = id
	s.rows[id] = tx.rows
	s.index[id] = tx.index
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	if tx.meta == nil {
		return nil
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reservedHashes, tx.meta.FileHash)
	delete(s.reservedNames, tx.meta.Name)
	return nil
}
