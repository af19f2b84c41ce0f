// Package postgres implements core.Store on PostgreSQL through pgx.
//
// Rows are bulk-loaded with COPY, column index entries go through a single
// batch, and dataset name and file hash uniqueness is enforced by unique
// constraints so concurrent ingestions of the same file cannot both commit.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tabstore/internal/core"
	"github.com/JonMunkholm/tabstore/internal/errs"
)

// Config holds pool settings.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a core.Store backed by a pgxpool.Pool.
// It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// Open connects to PostgreSQL and pings it before returning.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindInvalidInput, Message: "invalid database url", Cause: err}
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindConnectionFailed, Message: "create connection pool", Cause: err}
	}

	s := New(pool)
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool, e.g. for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks that a connection can be acquired.
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.pool.Ping(ctx), "ping")
}

// Close drains the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const datasetColumns = `id, dataset_name, original_filename, file_hash, row_count, column_count,
	schema_info, has_missing_values, missing_report, error_log, duplicate_count,
	description, upload_timestamp, last_modified`

func scanDataset(row pgx.Row) (*core.DatasetMetadata, error) {
	var (
		meta                              core.DatasetMetadata
		schemaJSON, missingJSON, errorLog []byte
	)
	err := row.Scan(
		&meta.ID, &meta.Name, &meta.OriginalFilename, &meta.FileHash,
		&meta.RowCount, &meta.ColumnCount,
		&schemaJSON, &meta.HasMissingValues, &missingJSON, &errorLog,
		&meta.DuplicateCount, &meta.Description, &meta.UploadedAt, &meta.LastModified,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(schemaJSON, &meta.Schema); err != nil {
		return nil, fmt.Errorf("decode schema of dataset %d: %w", meta.ID, err)
	}
	if err := json.Unmarshal(missingJSON, &meta.MissingReport); err != nil {
		return nil, fmt.Errorf("decode missing report of dataset %d: %w", meta.ID, err)
	}
	if err := json.Unmarshal(errorLog, &meta.ErrorLog); err != nil {
		return nil, fmt.Errorf("decode error log of dataset %d: %w", meta.ID, err)
	}
	if meta.ErrorLog == nil {
		meta.ErrorLog = []core.ValidationIssue{}
	}
	meta.UploadedAt = meta.UploadedAt.UTC()
	meta.LastModified = meta.LastModified.UTC()
	return &meta, nil
}

// DatasetByName looks a dataset up by name.
func (s *Store) DatasetByName(ctx context.Context, name string) (*core.DatasetMetadata, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM dataset_metadata WHERE dataset_name = $1`, name)
	meta, err := scanDataset(row)
	if err != nil {
		return nil, notFound(err, "get dataset by name", name)
	}
	return meta, nil
}

// DatasetByHash looks a dataset up by file hash.
func (s *Store) DatasetByHash(ctx context.Context, fileHash string) (*core.DatasetMetadata, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM dataset_metadata WHERE file_hash = $1`, fileHash)
	meta, err := scanDataset(row)
	if err != nil {
		return nil, notFound(err, "get dataset by hash", fileHash)
	}
	return meta, nil
}

// ListDatasets returns all datasets ordered by id.
func (s *Store) ListDatasets(ctx context.Context) ([]core.DatasetMetadata, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+datasetColumns+` FROM dataset_metadata ORDER BY id`)
	if err != nil {
		return nil, mapError(err, "list datasets")
	}
	defer rows.Close()

	out := make([]core.DatasetMetadata, 0)
	for rows.Next() {
		meta, err := scanDataset(rows)
		if err != nil {
			return nil, mapError(err, "scan dataset")
		}
		out = append(out, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "list datasets")
	}
	return out, nil
}

// ListRows returns a page of rows in row_number order.
func (s *Store) ListRows(ctx context.Context, datasetID int64, q core.RowQuery) ([]core.DataRow, error) {
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT dataset_id, row_number, data, row_hash, has_missing_values, is_duplicate
		FROM data_rows
		WHERE dataset_id = $1 AND (NOT $2 OR NOT is_duplicate)
		ORDER BY row_number
		OFFSET $3 LIMIT $4`,
		datasetID, q.ExcludeDuplicates, q.Offset, limit)
	if err != nil {
		return nil, mapError(err, "list rows")
	}
	defer rows.Close()

	out := make([]core.DataRow, 0)
	for rows.Next() {
		var (
			r    core.DataRow
			data []byte
		)
		if err := rows.Scan(&r.DatasetID, &r.RowNumber, &data, &r.RowHash, &r.HasMissingValues, &r.IsDuplicate); err != nil {
			return nil, mapError(err, "scan row")
		}
		if err := json.Unmarshal(data, &r.Data); err != nil {
			return nil, fmt.Errorf("decode row %d of dataset %d: %w", r.RowNumber, datasetID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "list rows")
	}
	return out, nil
}

// ListColumnIndex returns the column index entries in column order.
func (s *Store) ListColumnIndex(ctx context.Context, datasetID int64) ([]core.ColumnIndexEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT dataset_id, column_name, data_type, distinct_count, min_value, max_value, sample_values
		FROM column_index
		WHERE dataset_id = $1
		ORDER BY position`, datasetID)
	if err != nil {
		return nil, mapError(err, "list column index")
	}
	defer rows.Close()

	out := make([]core.ColumnIndexEntry, 0)
	for rows.Next() {
		var (
			e        core.ColumnIndexEntry
			dataType string
			samples  []byte
		)
		if err := rows.Scan(&e.DatasetID, &e.ColumnName, &dataType, &e.DistinctCount, &e.MinValue, &e.MaxValue, &samples); err != nil {
			return nil, mapError(err, "scan column index")
		}
		e.DataType = core.LogicalType(dataType)
		if err := json.Unmarshal(samples, &e.SampleValues); err != nil {
			return nil, fmt.Errorf("decode samples of column %q: %w", e.ColumnName, err)
		}
		if e.SampleValues == nil {
			e.SampleValues = []core.Value{}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "list column index")
	}
	return out, nil
}

// DeleteDataset removes a dataset; rows and column index entries go with it
// through ON DELETE CASCADE.
func (s *Store) DeleteDataset(ctx context.Context, name string) (*core.DatasetMetadata, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM dataset_metadata WHERE dataset_name = $1 RETURNING `+datasetColumns, name)
	meta, err := scanDataset(row)
	if err != nil {
		return nil, notFound(err, "delete dataset", name)
	}
	return meta, nil
}

// Begin starts an ingestion transaction.
func (s *Store) Begin(ctx context.Context) (core.StoreTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err, "begin transaction")
	}
	return &storeTx{tx: tx}, nil
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) CreateDataset(ctx context.Context, meta *core.DatasetMetadata) error {
	schemaJSON, err := json.Marshal(meta.Schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	missingJSON, err := json.Marshal(meta.MissingReport)
	if err != nil {
		return fmt.Errorf("encode missing report: %w", err)
	}
	issues := meta.ErrorLog
	if issues == nil {
		issues = []core.ValidationIssue{}
	}
	errorLog, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("encode error log: %w", err)
	}

	uploadedAt := meta.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO dataset_metadata (
			dataset_name, original_filename, file_hash, row_count, column_count,
			schema_info, has_missing_values, missing_report, error_log, duplicate_count,
			description, upload_timestamp, last_modified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id, upload_timestamp, last_modified`,
		meta.Name, meta.OriginalFilename, meta.FileHash, meta.RowCount, meta.ColumnCount,
		schemaJSON, meta.HasMissingValues, missingJSON, errorLog, meta.DuplicateCount,
		meta.Description, uploadedAt,
	).Scan(&meta.ID, &meta.UploadedAt, &meta.LastModified)
	if err != nil {
		return mapError(err, "insert dataset")
	}
	meta.UploadedAt = meta.UploadedAt.UTC()
	meta.LastModified = meta.LastModified.UTC()
	return nil
}

var dataRowColumns = []string{"dataset_id", "row_number", "data", "row_hash", "has_missing_values", "is_duplicate"}

func (t *storeTx) InsertRows(ctx context.Context, rows []core.DataRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, len(rows))
	for i, r := range rows {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", r.RowNumber, err)
		}
		values[i] = []any{r.DatasetID, r.RowNumber, data, r.RowHash, r.HasMissingValues, r.IsDuplicate}
	}

	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{"data_rows"}, dataRowColumns, pgx.CopyFromRows(values))
	if err != nil {
		return mapError(err, "copy rows")
	}
	if int(n) != len(rows) {
		return &errs.Error{Kind: errs.KindQueryFailed, Message: fmt.Sprintf("copied %d of %d rows", n, len(rows))}
	}
	return nil
}

func (t *storeTx) InsertColumnIndex(ctx context.Context, entries []core.ColumnIndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, e := range entries {
		samples := e.SampleValues
		if samples == nil {
			samples = []core.Value{}
		}
		samplesJSON, err := json.Marshal(samples)
		if err != nil {
			return fmt.Errorf("encode samples of column %q: %w", e.ColumnName, err)
		}
		batch.Queue(`
			INSERT INTO column_index (
				dataset_id, position, column_name, data_type, distinct_count,
				min_value, max_value, sample_values
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.DatasetID, i, e.ColumnName, string(e.DataType), e.DistinctCount,
			e.MinValue, e.MaxValue, samplesJSON)
	}

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(err, "insert column index")
	}
	return nil
}

func (t *storeTx) SetDuplicateCount(ctx context.Context, datasetID int64, count int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE dataset_metadata SET duplicate_count = $2, last_modified = now() WHERE id = $1`,
		datasetID, count)
	if err != nil {
		return mapError(err, "update duplicate count")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", core.ErrDatasetNotFound, datasetID)
	}
	return nil
}

func (t *storeTx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx), "commit")
}

// Rollback is safe to call after Commit; pgx returns ErrTxClosed, which is
// swallowed here.
func (t *storeTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return mapError(err, "rollback")
}
