package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabstore/internal/config"
	"github.com/JonMunkholm/tabstore/internal/core"
	"github.com/JonMunkholm/tabstore/internal/errs"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
			BatchSize:     2,
		},
		Query:    config.QueryConfig{DefaultLimit: 100, MaxLimit: 1000},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	service := core.NewService(core.NewMemoryStore(), nil, core.ServiceConfig{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		Timeout:       cfg.Upload.Timeout,
		BatchSize:     cfg.Upload.BatchSize,
		DefaultLimit:  cfg.Query.DefaultLimit,
		MaxLimit:      cfg.Query.MaxLimit,
	})
	s := NewServer(service, cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

// uploadRequest builds a multipart POST to target with the CSV as "file".
func uploadRequest(t *testing.T, target, filename, csv string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const salesCSV = "region,amount\nnorth,10\nsouth,\nnorth,10\n"

func TestRoot(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]string](t, rec)
	require.Equal(t, "online", body["status"])
	require.Equal(t, apiName, body["api"])
	require.Equal(t, apiVersion, body["version"])
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, false, body["archive"])
}

func TestUploadAndQuery(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, uploadRequest(t, "/upload-csv/", "sales.csv", salesCSV, map[string]string{
		"dataset_name": "sales",
		"description":  "q1 sales",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	up := decode[uploadResponse](t, rec)
	require.Equal(t, "success", up.Status)
	require.Equal(t, "sales", up.DatasetName)
	require.NotEmpty(t, up.IngestID)
	require.Equal(t, 3, up.RowsInserted)
	require.Equal(t, 2, up.Columns)
	require.Equal(t, 1, up.DuplicateRows)
	require.True(t, up.HasMissingValues)
	require.Equal(t, 1, up.MissingValueSummary.TotalMissingCells)
	require.Contains(t, up.MissingValueSummary.ColumnsWithMissing, "amount")
	require.Equal(t, core.TypeString, up.Schema["region"])

	t.Run("list", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/datasets/", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		list := decode[[]datasetInfo](t, rec)
		require.Len(t, list, 1)
		require.Equal(t, "sales", list[0].Name)
		require.Equal(t, "sales.csv", list[0].Filename)
		require.Equal(t, "q1 sales", list[0].Description)
		require.Equal(t, 3, list[0].Rows)
		require.Equal(t, 1, list[0].Duplicates)
	})

	t.Run("schema", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/dataset/sales/schema", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[schemaResponse](t, rec)
		require.Equal(t, 3, body.RowCount)
		require.Equal(t, 2, body.ColumnCount)
		require.True(t, body.HasMissingValues)
		require.Equal(t, []int{1}, body.MissingValueReport.ColumnsWithMissing["amount"].Positions)
	})

	t.Run("data", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/dataset/sales/data", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[map[string]any](t, rec)
		require.Equal(t, float64(3), body["total_rows"])
		require.Equal(t, float64(3), body["returned_rows"])

		data := body["data"].([]any)
		require.Equal(t, map[string]any{"region": "north", "amount": "10"}, data[0])
		require.Equal(t, map[string]any{"region": "south", "amount": nil}, data[1])
	})

	t.Run("data paging and duplicate filter", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/dataset/sales/data?limit=1&offset=1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]any](t, rec)
		require.Equal(t, float64(1), body["returned_rows"])
		require.Equal(t, "south", body["data"].([]any)[0].(map[string]any)["region"])

		rec = do(s, httptest.NewRequest(http.MethodGet, "/dataset/sales/data?exclude_duplicates=true", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body = decode[map[string]any](t, rec)
		require.Equal(t, float64(2), body["returned_rows"])
		require.Equal(t, float64(3), body["total_rows"])
	})

	t.Run("invalid paging", func(t *testing.T) {
		for _, q := range []string{"limit=abc", "limit=0", "offset=-1", "exclude_duplicates=maybe"} {
			rec := do(s, httptest.NewRequest(http.MethodGet, "/dataset/sales/data?"+q, nil))
			require.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})

	t.Run("columns", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/dataset/sales/columns", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[columnsResponse](t, rec)
		require.Len(t, body.Columns, 2)
		require.Equal(t, "region", body.Columns[0].ColumnName)
		require.Equal(t, 2, body.Columns[0].DistinctCount)
	})

	t.Run("source without archive", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/dataset/sales/source", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodDelete, "/dataset/sales", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, map[string]string{"status": "deleted", "dataset_name": "sales"}, decode[map[string]string](t, rec))

		rec = do(s, httptest.NewRequest(http.MethodGet, "/dataset/sales/schema", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(s, httptest.NewRequest(http.MethodDelete, "/dataset/sales", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpload_NameFromQuery(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, uploadRequest(t, "/upload-csv?dataset_name=from_query", "x.csv", "a\n1\n", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "from_query", decode[uploadResponse](t, rec).DatasetName)
}

func TestUpload_GeneratedName(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, uploadRequest(t, "/upload-csv", "report.csv", "a\n1\n", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Regexp(t, `^report_\d{8}_\d{6}$`, decode[uploadResponse](t, rec).DatasetName)
}

func TestUpload_Conflicts(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, uploadRequest(t, "/upload-csv", "a.csv", salesCSV, map[string]string{"dataset_name": "first"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, uploadRequest(t, "/upload-csv", "b.csv", salesCSV, map[string]string{"dataset_name": "second"}))
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[ErrorResponse](t, rec)
	require.Equal(t, "Duplicate file. Already stored as: first", body.Detail)
	require.Equal(t, "DS001", body.Code)

	rec = do(s, uploadRequest(t, "/upload-csv", "c.csv", "x\n1\n", map[string]string{"dataset_name": "first"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode[ErrorResponse](t, rec)
	require.Equal(t, "Dataset name already exists", body.Detail)
	require.Equal(t, "DS002", body.Code)
}

func TestUpload_BadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 64
	s := newTestServer(t, cfg)

	t.Run("no file", func(t *testing.T) {
		rec := do(s, uploadRequest(t, "/upload-csv", "", "", map[string]string{"dataset_name": "x"}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "FILE004", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("too large", func(t *testing.T) {
		big := "a\n" + string(bytes.Repeat([]byte("1\n"), 100))
		rec := do(s, uploadRequest(t, "/upload-csv", "big.csv", big, nil))
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		require.Equal(t, "FILE001", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload-csv", bytes.NewBufferString("a,b\n1,2\n"))
		req.Header.Set("Content-Type", "text/csv")
		rec := do(s, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty file", func(t *testing.T) {
		rec := do(s, uploadRequest(t, "/upload-csv", "empty.csv", "", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "FILE005", decode[ErrorResponse](t, rec).Code)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)

	// Another client still gets through.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:1234"
	require.Equal(t, http.StatusOK, do(s, req).Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"duplicate file from store", core.ErrDuplicateFile, http.StatusConflict},
		{"duplicate name", core.ErrDuplicateName, http.StatusBadRequest},
		{"not found", core.ErrDatasetNotFound, http.StatusNotFound},
		{"archive disabled", core.ErrArchiveDisabled, http.StatusNotFound},
		{"busy", core.ErrTooManyIngestions, http.StatusServiceUnavailable},
		{"store unreachable", errs.Wrap(errs.KindConnectionFailed, "connect", bytes.ErrTooLarge), http.StatusServiceUnavailable},
		{"archive access denied", errs.New(errs.KindPermissionDenied, "put object"), http.StatusForbidden},
		{"timeout", errs.New(errs.KindTimeout, "insert rows"), http.StatusGatewayTimeout},
		{"conflict", errs.New(errs.KindConflict, "insert dataset"), http.StatusConflict},
		{"invalid input", errs.New(errs.KindInvalidInput, "bucket required"), http.StatusBadRequest},
		{"other", bytes.ErrTooLarge, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := classify(tt.err)
			require.Equal(t, tt.status, status)
			require.NotEmpty(t, detail)
		})
	}
}
