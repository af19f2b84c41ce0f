package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// MaxSampleValues caps the samples kept per column index entry.
const MaxSampleValues = 10

// DefaultBatchSize is the number of rows handed to the store per insert.
const DefaultBatchSize = 1000

// IngestOptions tunes a single ingestion.
type IngestOptions struct {
	Parse     ParseOptions
	BatchSize int
	Now       func() time.Time // UTC clock; time.Now when nil
}

func (o IngestOptions) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// Ingest runs the full pipeline for one upload and commits everything it
// produces in a single store transaction.
//
// Duplicate uploads fail with an error matching ErrDuplicateFile and taken
// names with ErrDuplicateName. The early lookups give a friendly message;
// the store's unique constraints are what actually guard concurrent uploads.
// On any failure the transaction is rolled back and the store is unchanged.
func Ingest(ctx context.Context, store Store, req IngestRequest, opts IngestOptions) (*IngestResult, error) {
	start := time.Now()
	fileHash := HashFile(req.Data)

	if existing, err := store.DatasetByHash(ctx, fileHash); err == nil {
		return nil, &DuplicateFileError{Existing: existing.Name}
	} else if !errors.Is(err, ErrDatasetNotFound) {
		return nil, fmt.Errorf("lookup file hash: %w", err)
	}

	raw, err := ParseCSV(req.Data, opts.Parse)
	if err != nil {
		return nil, err
	}

	table, issues := Validate(raw)

	missing, schema, err := Analyze(ctx, table)
	if err != nil {
		return nil, err
	}

	now := opts.now()
	name := req.DatasetName
	if name == "" {
		name = DefaultDatasetName(req.FileName, now)
	}

	if _, err := store.DatasetByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	} else if !errors.Is(err, ErrDatasetNotFound) {
		return nil, fmt.Errorf("lookup dataset name: %w", err)
	}

	meta := DatasetMetadata{
		Name:             name,
		OriginalFilename: req.FileName,
		FileHash:         fileHash,
		RowCount:         table.NumRows(),
		ColumnCount:      len(table.Columns),
		Schema:           schema,
		HasMissingValues: missing.HasMissing,
		MissingReport:    missing,
		ErrorLog:         issues,
		Description:      req.Description,
		UploadedAt:       now,
		LastModified:     now,
	}

	tx, err := store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.CreateDataset(ctx, &meta); err != nil {
		return nil, err
	}

	rows, duplicates := BuildRows(table)
	if err := insertRows(ctx, tx, meta.ID, rows, opts.BatchSize); err != nil {
		return nil, err
	}

	if err := tx.SetDuplicateCount(ctx, meta.ID, duplicates); err != nil {
		return nil, fmt.Errorf("set duplicate count: %w", err)
	}
	meta.DuplicateCount = duplicates

	entries := BuildColumnIndex(table, schema)
	for i := range entries {
		entries[i].DatasetID = meta.ID
	}
	if err := tx.InsertColumnIndex(ctx, entries); err != nil {
		return nil, fmt.Errorf("insert column index: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &IngestResult{
		Dataset:        meta,
		RowsInserted:   len(rows),
		DuplicateRows:  duplicates,
		ErrorsDetected: len(issues),
		Duration:       time.Since(start),
	}, nil
}

// insertRows writes rows in batches, checking for cancellation between them.
func insertRows(ctx context.Context, tx StoreTx, datasetID int64, rows []DataRow, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for i := range rows {
		rows[i].DatasetID = datasetID
	}

	for start := 0; start < len(rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(rows))
		if err := tx.InsertRows(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// Analyze computes the missing-value report and the schema of the cleaned
// table. Both only read t, so they run concurrently.
func Analyze(ctx context.Context, t Table) (MissingReport, Schema, error) {
	var missing MissingReport
	var schema Schema

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		missing = AnalyzeMissing(t)
		return nil
	})
	g.Go(func() error {
		schema = InferSchema(t)
		return nil
	})
	if err := g.Wait(); err != nil {
		return MissingReport{}, nil, err
	}
	return missing, schema, ctx.Err()
}

// BuildRows builds the rows of t in table order and flags every row whose
// hash already appeared earlier in t. It returns the number of flagged rows.
//
// Duplicates are only detected within this table, never across datasets.
func BuildRows(t Table) ([]DataRow, int) {
	n := t.NumRows()
	rows := make([]DataRow, 0, n)
	seen := make(map[string]struct{}, n)
	duplicates := 0

	for i := 0; i < n; i++ {
		data := t.Row(i)
		hash := HashRow(data)

		_, dup := seen[hash]
		if dup {
			duplicates++
		}

		hasMissing := false
		for _, v := range data {
			if v.IsNull() {
				hasMissing = true
				break
			}
		}

		rows = append(rows, DataRow{
			RowNumber:        t.Position(i),
			Data:             data,
			RowHash:          hash,
			HasMissingValues: hasMissing,
			IsDuplicate:      dup,
		})
		seen[hash] = struct{}{}
	}

	return rows, duplicates
}

// BuildColumnIndex summarises every column of t.
//
// MinValue and MaxValue compare the rendered strings of non-null values, so
// numeric columns order lexicographically ("10" < "9"). This matches the
// ordering existing datasets were indexed with.
func BuildColumnIndex(t Table, schema Schema) []ColumnIndexEntry {
	entries := make([]ColumnIndexEntry, 0, len(t.Columns))

	for _, c := range t.Columns {
		entry := ColumnIndexEntry{
			ColumnName:   c.Name,
			DataType:     schema[c.Name],
			SampleValues: []Value{},
		}
		if entry.DataType == "" {
			entry.DataType = LogicalTypeOf(ColumnKindOf(c))
		}

		distinct := make(map[string]struct{})
		var lo, hi string
		found := false

		for _, v := range c.Values {
			if v.IsNull() {
				continue
			}
			s := v.String()
			distinct[v.Kind().String()+"\x00"+s] = struct{}{}

			if !found {
				lo, hi, found = s, s, true
			} else {
				if s < lo {
					lo = s
				}
				if s > hi {
					hi = s
				}
			}

			if len(entry.SampleValues) < MaxSampleValues {
				entry.SampleValues = append(entry.SampleValues, v)
			}
		}

		entry.DistinctCount = len(distinct)
		if found {
			entry.MinValue = &lo
			entry.MaxValue = &hi
		}
		entries = append(entries, entry)
	}

	return entries
}

// DefaultDatasetName derives a dataset name from the upload file name:
// the name without its extension, "_", and the UTC time as YYYYMMDD_HHMMSS.
func DefaultDatasetName(fileName string, now time.Time) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "dataset"
	}
	return base + "_" + now.UTC().Format("20060102_150405")
}
