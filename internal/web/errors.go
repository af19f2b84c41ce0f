package web

// errors.go provides unified error response handling for the web layer.
//
// Every error response has the same JSON shape: a human readable detail, the
// support code from core.MapError and a suggested action. The technical error
// is logged server-side with the request id for correlation.

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/tabstore/internal/core"
	"github.com/JonMunkholm/tabstore/internal/errs"
	"github.com/JonMunkholm/tabstore/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
	Action string `json:"action,omitempty"`
}

// respondError maps err to a status code and detail, logs it, and writes the
// error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	logArgs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", logArgs...)
	} else {
		logger.Warn("request error", logArgs...)
	}

	if errors.Is(err, core.ErrTooManyIngestions) {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.Upload.MaxWaitTime.Seconds())))
	}

	writeJSON(w, status, ErrorResponse{
		Detail: detail,
		Code:   userMsg.Code,
		Action: userMsg.Action,
	})
}

// classify returns the status code and detail message for err.
// Duplicate names are a client error (400) while duplicate files are a
// conflict (409), matching what API clients already expect.
func classify(err error) (int, string) {
	var dup *core.DuplicateFileError
	switch {
	case errors.As(err, &dup):
		return http.StatusConflict, fmt.Sprintf("Duplicate file. Already stored as: %s", dup.Existing)
	case errors.Is(err, core.ErrDuplicateFile):
		return http.StatusConflict, "Duplicate file"
	case errors.Is(err, core.ErrDuplicateName):
		return http.StatusBadRequest, "Dataset name already exists"
	case errors.Is(err, core.ErrDatasetNotFound):
		return http.StatusNotFound, "Dataset not found"
	case errors.Is(err, core.ErrTooManyIngestions):
		return http.StatusServiceUnavailable, core.ErrTooManyIngestions.Message
	}

	switch {
	case errs.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case errs.IsInvalidInput(err):
		return http.StatusBadRequest, err.Error()
	case errs.IsConflict(err):
		return http.StatusConflict, err.Error()
	case errs.IsPermissionDenied(err):
		return http.StatusForbidden, err.Error()
	case errs.IsTimeout(err):
		return http.StatusGatewayTimeout, err.Error()
	case errs.IsConnectionFailed(err):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// writeError writes an error response for failures raised by the web layer
// itself, before any service call.
func writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	logging.FromContext(r.Context()).Warn("request rejected",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"detail", detail,
	)

	resp := ErrorResponse{Detail: detail}
	if err := errors.New(detail); core.IsUserFacing(err) {
		userMsg := core.MapError(err)
		resp.Code = userMsg.Code
		resp.Action = userMsg.Action
	}
	writeJSON(w, status, resp)
}
