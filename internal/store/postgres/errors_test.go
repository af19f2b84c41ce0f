package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/tabstore/internal/core"
	"github.com/JonMunkholm/tabstore/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		kind   errs.Kind
	}{
		{
			name:   "file hash violation",
			err:    &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintFileHash},
			target: core.ErrDuplicateFile,
			kind:   errs.KindConflict,
		},
		{
			name:   "dataset name violation",
			err:    fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintDatasetName}),
			target: core.ErrDuplicateName,
			kind:   errs.KindConflict,
		},
		{
			name: "other unique violation",
			err:  &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "something_else"},
			kind: errs.KindConflict,
		},
		{
			name: "connection failure",
			err:  &pgconn.PgError{Code: pgErrConnectionFailure},
			kind: errs.KindConnectionFailed,
		},
		{
			name: "permission denied",
			err:  &pgconn.PgError{Code: pgErrInsufficientPriv},
			kind: errs.KindPermissionDenied,
		},
		{
			name: "syntax error",
			err:  &pgconn.PgError{Code: "42601"},
			kind: errs.KindQueryFailed,
		},
		{
			name:   "deadline",
			err:    context.DeadlineExceeded,
			target: context.DeadlineExceeded,
			kind:   errs.KindTimeout,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			kind: errs.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			if tt.target != nil && !errors.Is(got, tt.target) {
				t.Errorf("mapError() = %v, want match for %v", got, tt.target)
			}
			if k := errs.KindOf(got); k != tt.kind {
				t.Errorf("KindOf = %v, want %v", k, tt.kind)
			}
		})
	}

	if mapError(nil, "op") != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestNotFound(t *testing.T) {
	err := notFound(pgx.ErrNoRows, "get", "sales")
	if !errors.Is(err, core.ErrDatasetNotFound) || !errs.IsNotFound(err) {
		t.Errorf("notFound(ErrNoRows) = %v", err)
	}
}
