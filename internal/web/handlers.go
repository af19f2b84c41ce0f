package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabstore/internal/core"
)

// multipartOverhead is headroom for form boundaries and fields on top of the
// file size limit.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	Status              string             `json:"status"`
	IngestID            string             `json:"ingest_id"`
	DatasetID           int64              `json:"dataset_id"`
	DatasetName         string             `json:"dataset_name"`
	RowsInserted        int                `json:"rows_inserted"`
	Columns             int                `json:"columns"`
	DuplicateRows       int                `json:"duplicate_rows"`
	HasMissingValues    bool               `json:"has_missing_values"`
	MissingValueSummary core.MissingReport `json:"missing_value_summary"`
	ErrorsDetected      int                `json:"errors_detected"`
	Schema              core.Schema        `json:"schema"`
}

type datasetInfo struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Filename         string    `json:"filename"`
	Description      string    `json:"description,omitempty"`
	Uploaded         time.Time `json:"uploaded"`
	Rows             int       `json:"rows"`
	Columns          int       `json:"columns"`
	HasMissingValues bool      `json:"has_missing_values"`
	Duplicates       int       `json:"duplicates"`
}

type schemaResponse struct {
	DatasetName        string                 `json:"dataset_name"`
	Schema             core.Schema            `json:"schema"`
	RowCount           int                    `json:"row_count"`
	ColumnCount        int                    `json:"column_count"`
	HasMissingValues   bool                   `json:"has_missing_values"`
	MissingValueReport core.MissingReport     `json:"missing_value_report"`
	ErrorLog           []core.ValidationIssue `json:"error_log"`
}

type dataResponse struct {
	DatasetName  string     `json:"dataset_name"`
	TotalRows    int        `json:"total_rows"`
	ReturnedRows int        `json:"returned_rows"`
	Data         []core.Row `json:"data"`
}

type columnsResponse struct {
	DatasetName string                  `json:"dataset_name"`
	Columns     []core.ColumnIndexEntry `json:"columns"`
	ErrorLog    []core.ValidationIssue  `json:"error_log"`
}

// handleRoot reports that the API is up.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"api":     apiName,
		"version": apiVersion,
	})
}

// handleHealth pings the store and reports ingestion slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	storeStatus := "ok"
	if err := s.service.Ping(r.Context()); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		storeStatus = err.Error()
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"store":      storeStatus,
		"archive":    s.service.ArchiveEnabled(),
		"ingestions": s.service.LimiterStatus(),
	})
}

// handleUpload ingests a multipart CSV upload. The dataset name and
// description may come from form fields or query parameters.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		writeError(w, r, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to read file")
		return
	}

	result, err := s.service.Ingest(r.Context(), core.IngestRequest{
		FileName:    header.Filename,
		DatasetName: r.FormValue("dataset_name"),
		Description: r.FormValue("description"),
		Data:        data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	meta := result.Dataset
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:              "success",
		IngestID:            result.IngestID,
		DatasetID:           meta.ID,
		DatasetName:         meta.Name,
		RowsInserted:        result.RowsInserted,
		Columns:             meta.ColumnCount,
		DuplicateRows:       result.DuplicateRows,
		HasMissingValues:    meta.HasMissingValues,
		MissingValueSummary: meta.MissingReport,
		ErrorsDetected:      result.ErrorsDetected,
		Schema:              meta.Schema,
	})
}

// handleListDatasets lists every stored dataset.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.service.ListDatasets(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]datasetInfo, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, datasetInfo{
			ID:               d.ID,
			Name:             d.Name,
			Filename:         d.OriginalFilename,
			Description:      d.Description,
			Uploaded:         d.UploadedAt,
			Rows:             d.RowCount,
			Columns:          d.ColumnCount,
			HasMissingValues: d.HasMissingValues,
			Duplicates:       d.DuplicateCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSchema returns a dataset's schema and missing value report.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	meta, err := s.service.Dataset(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, schemaResponse{
		DatasetName:        meta.Name,
		Schema:             meta.Schema,
		RowCount:           meta.RowCount,
		ColumnCount:        meta.ColumnCount,
		HasMissingValues:   meta.HasMissingValues,
		MissingValueReport: meta.MissingReport,
		ErrorLog:           meta.ErrorLog,
	})
}

// handleData returns a page of a dataset's rows.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	q, err := parseRowQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	name := chi.URLParam(r, "name")
	meta, err := s.service.Dataset(r.Context(), name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rows, err := s.service.Rows(r.Context(), name, q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data := make([]core.Row, len(rows))
	for i, row := range rows {
		data[i] = row.Data
	}
	writeJSON(w, http.StatusOK, dataResponse{
		DatasetName:  meta.Name,
		TotalRows:    meta.RowCount,
		ReturnedRows: len(data),
		Data:         data,
	})
}

// handleColumns returns a dataset's column index and validation issues.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	meta, entries, err := s.service.Columns(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.ColumnIndexEntry{}
	}
	writeJSON(w, http.StatusOK, columnsResponse{
		DatasetName: meta.Name,
		Columns:     entries,
		ErrorLog:    meta.ErrorLog,
	})
}

// handleSource returns a presigned link to the archived raw file.
func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	url, err := s.service.SourceURL(r.Context(), name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"dataset_name": name,
		"url":          url,
	})
}

// handleDelete removes a dataset with its rows and column index.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.service.DeleteDataset(r.Context(), name); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "deleted",
		"dataset_name": name,
	})
}

// parseRowQuery reads limit, offset and exclude_duplicates. Absent values
// are left zero so the service applies its defaults.
func parseRowQuery(r *http.Request) (core.RowQuery, error) {
	var q core.RowQuery
	query := r.URL.Query()

	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, errors.New("limit must be a positive integer")
		}
		q.Limit = n
	}
	if v := query.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("offset must be a non-negative integer")
		}
		q.Offset = n
	}
	if v := query.Get("exclude_duplicates"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, errors.New("exclude_duplicates must be true or false")
		}
		q.ExcludeDuplicates = b
	}
	return q, nil
}
