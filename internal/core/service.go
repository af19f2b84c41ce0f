package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabstore/internal/errs"
	"github.com/JonMunkholm/tabstore/internal/logging"
)

// DefaultIngestTimeout bounds one ingestion when ServiceConfig leaves it unset.
const DefaultIngestTimeout = 10 * time.Minute

// ErrArchiveDisabled is returned by SourceURL when no archive is configured.
var ErrArchiveDisabled = errs.New(errs.KindNotFound, "raw file archive is not enabled")

// Archive keeps the raw bytes of uploaded files, keyed by file hash.
type Archive interface {
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}

// ServiceConfig tunes a Service. Zero fields fall back to defaults.
type ServiceConfig struct {
	MaxConcurrent int
	MaxWait       time.Duration
	Timeout       time.Duration
	BatchSize     int
	NullTokens    []string
	DefaultLimit  int
	MaxLimit      int
}

// Service is the entry point the transport layer talks to.
type Service struct {
	store   Store
	archive Archive // nil when archiving is disabled
	limiter *IngestLimiter
	cfg     ServiceConfig
}

// NewService wires a Service over store. archive may be nil.
func NewService(store Store, archive Archive, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultIngestTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}

	return &Service{
		store:   store,
		archive: archive,
		limiter: NewIngestLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:     cfg,
	}
}

// Ingest stores one uploaded file as a new dataset.
//
// It waits for an ingestion slot first and fails with ErrTooManyIngestions
// when none frees up in time. The archive copy is written after commit and
// its failure only logs; the dataset is already durable at that point.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (result *IngestResult, err error) {
	ingestID := uuid.New().String()
	logger := logging.WithFields(ctx,
		"ingest_id", ingestID,
		"file_name", req.FileName,
		"bytes", len(req.Data),
	)

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("ingestion rejected", "error", err, "active", s.limiter.ActiveCount())
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in ingestion",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result, err = nil, errs.New(errs.KindInternal, fmt.Sprintf("ingestion failed: %v", r))
		}
	}()

	logger.Info("ingestion started", "dataset_name", req.DatasetName)

	result, err = Ingest(ctx, s.store, req, IngestOptions{
		Parse:     ParseOptions{NullTokens: s.cfg.NullTokens},
		BatchSize: s.cfg.BatchSize,
	})
	if err != nil {
		logger.Warn("ingestion failed", "error", err, "code", MapError(err).Code)
		return nil, err
	}
	result.IngestID = ingestID

	logger.Info("ingestion completed",
		"dataset_id", result.Dataset.ID,
		"dataset_name", result.Dataset.Name,
		"rows", result.RowsInserted,
		"duplicates", result.DuplicateRows,
		"issues", result.ErrorsDetected,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if s.archive != nil {
		if err := s.archive.Save(ctx, result.Dataset.FileHash, req.Data); err != nil {
			logger.Error("archive raw file failed", "error", err, "file_hash", result.Dataset.FileHash)
		}
	}

	return result, nil
}

// ListDatasets returns every dataset's metadata.
func (s *Service) ListDatasets(ctx context.Context) ([]DatasetMetadata, error) {
	return s.store.ListDatasets(ctx)
}

// Dataset returns the metadata of the named dataset.
func (s *Service) Dataset(ctx context.Context, name string) (*DatasetMetadata, error) {
	return s.store.DatasetByName(ctx, name)
}

// Rows returns a page of the named dataset's rows in row_number order.
// A non-positive limit uses the default page size; larger ones are capped.
func (s *Service) Rows(ctx context.Context, name string, q RowQuery) ([]DataRow, error) {
	meta, err := s.store.DatasetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	q.Limit = s.clampLimit(q.Limit)
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.store.ListRows(ctx, meta.ID, q)
}

func (s *Service) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return s.cfg.DefaultLimit
	case limit > s.cfg.MaxLimit:
		return s.cfg.MaxLimit
	default:
		return limit
	}
}

// Columns returns the column index of the named dataset.
func (s *Service) Columns(ctx context.Context, name string) (*DatasetMetadata, []ColumnIndexEntry, error) {
	meta, err := s.store.DatasetByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.store.ListColumnIndex(ctx, meta.ID)
	if err != nil {
		return nil, nil, err
	}
	return meta, entries, nil
}

// DeleteDataset removes the named dataset with its rows and column index,
// then its archived raw file if any.
func (s *Service) DeleteDataset(ctx context.Context, name string) error {
	meta, err := s.store.DeleteDataset(ctx, name)
	if err != nil {
		return err
	}

	logger := logging.WithFields(ctx, "dataset_id", meta.ID, "dataset_name", meta.Name)
	logger.Info("dataset deleted", "rows", meta.RowCount)

	if s.archive != nil {
		if err := s.archive.Remove(ctx, meta.FileHash); err != nil && !errs.IsNotFound(err) {
			logger.Error("remove archived file failed", "error", err)
		}
	}
	return nil
}

// SourceURL returns a time-limited download link for the raw file the named
// dataset was ingested from.
func (s *Service) SourceURL(ctx context.Context, name string) (string, error) {
	if s.archive == nil {
		return "", ErrArchiveDisabled
	}
	meta, err := s.store.DatasetByName(ctx, name)
	if err != nil {
		return "", err
	}
	return s.archive.URL(ctx, meta.FileHash)
}

// ArchiveEnabled reports whether raw files are archived.
func (s *Service) ArchiveEnabled() bool {
	return s.archive != nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// LimiterStatus reports ingestion slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForIngestions blocks until running ingestions finish or ctx is done.
func (s *Service) WaitForIngestions(ctx context.Context) error {
	active := s.limiter.ActiveCount()
	if active > 0 {
		slog.Info("waiting for ingestions to finish", "active", active)
	}
	return s.limiter.WaitForDrain(ctx)
}
