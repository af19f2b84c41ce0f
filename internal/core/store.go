package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/tabstore/internal/errs"
)

// Errors surfaced by stores and the ingestion pipeline. Drivers wrap them
// with context; match with errors.Is.
var (
	ErrDuplicateFile   = errs.New(errs.KindConflict, "duplicate file")
	ErrDuplicateName   = errs.New(errs.KindConflict, "dataset name already exists")
	ErrDatasetNotFound = errs.New(errs.KindNotFound, "dataset not found")
)

// DuplicateFileError reports the dataset an identical upload is stored as.
// It matches ErrDuplicateFile.
type DuplicateFileError struct {
	Existing string
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("duplicate file, already stored as %q", e.Existing)
}

func (e *DuplicateFileError) Unwrap() error { return ErrDuplicateFile }

// Store persists datasets, their rows and column index entries.
//
// Readers must never observe a dataset whose transaction has not committed.
// Dataset name and file hash uniqueness is enforced by the store itself,
// not by callers checking first.
type Store interface {
	// Begin starts the transaction an ingestion writes through.
	Begin(ctx context.Context) (StoreTx, error)

	// DatasetByName returns ErrDatasetNotFound when no dataset has name.
	DatasetByName(ctx context.Context, name string) (*DatasetMetadata, error)

	// DatasetByHash returns ErrDatasetNotFound when no dataset has the file hash.
	DatasetByHash(ctx context.Context, fileHash string) (*DatasetMetadata, error)

	// ListDatasets returns all datasets ordered by id.
	ListDatasets(ctx context.Context) ([]DatasetMetadata, error)

	// ListRows returns a page of rows in row_number order.
	// A zero Limit returns every row after Offset.
	ListRows(ctx context.Context, datasetID int64, q RowQuery) ([]DataRow, error)

	// ListColumnIndex returns the column index entries in column order.
	ListColumnIndex(ctx context.Context, datasetID int64) ([]ColumnIndexEntry, error)

	// DeleteDataset removes the dataset with its rows and column index
	// entries and returns what was deleted.
	DeleteDataset(ctx context.Context, name string) (*DatasetMetadata, error)

	Ping(ctx context.Context) error
	Close()
}

// StoreTx is a single ingestion's unit of work.
// Nothing written through it is visible until Commit succeeds.
type StoreTx interface {
	// CreateDataset inserts meta and sets its ID and timestamps.
	// Returns an error matching ErrDuplicateFile or ErrDuplicateName when a
	// uniqueness constraint is violated, including by a concurrent ingestion.
	CreateDataset(ctx context.Context, meta *DatasetMetadata) error

	InsertRows(ctx context.Context, rows []DataRow) error
	InsertColumnIndex(ctx context.Context, entries []ColumnIndexEntry) error
	SetDuplicateCount(ctx context.Context, datasetID int64, count int) error

	Commit(ctx context.Context) error

	// Rollback discards the transaction. It is a no-op after Commit.
	Rollback(ctx context.Context) error
}
