package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/tabstore/internal/core"
	"github.com/JonMunkholm/tabstore/internal/errs"
)

// PostgreSQL SQLSTATE codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrUniqueViolation     = "23505"
	pgErrConnectionException = "08000"
	pgErrConnectionFailure   = "08006"
	pgErrCannotConnectNow    = "57P03"
	pgErrInsufficientPriv    = "42501"
	pgErrQueryCanceled       = "57014"
)

// Unique constraints on dataset_metadata, see migrations/000001_init.up.sql.
const (
	constraintDatasetName = "dataset_metadata_dataset_name_key"
	constraintFileHash    = "dataset_metadata_file_hash_key"
)

// mapError converts a pgx error into the store's error vocabulary.
// op names the failed operation for the message.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &errs.Error{Kind: errs.KindTimeout, Message: op, Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			switch pgErr.ConstraintName {
			case constraintFileHash:
				return fmt.Errorf("%w: %s", core.ErrDuplicateFile, pgErr.Detail)
			case constraintDatasetName:
				return fmt.Errorf("%w: %s", core.ErrDuplicateName, pgErr.Detail)
			}
			return &errs.Error{Kind: errs.KindConflict, Message: op, Cause: err}
		case pgErrConnectionException, pgErrConnectionFailure, pgErrCannotConnectNow:
			return &errs.Error{Kind: errs.KindConnectionFailed, Message: op, Cause: err}
		case pgErrInsufficientPriv:
			return &errs.Error{Kind: errs.KindPermissionDenied, Message: op, Cause: err}
		case pgErrQueryCanceled:
			return &errs.Error{Kind: errs.KindTimeout, Message: op, Cause: err}
		}
		return &errs.Error{Kind: errs.KindQueryFailed, Message: op, Cause: err}
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &errs.Error{Kind: errs.KindConnectionFailed, Message: op, Cause: err}
	}

	return &errs.Error{Kind: errs.KindInternal, Message: op, Cause: err}
}

// notFound maps pgx.ErrNoRows to core.ErrDatasetNotFound and everything else
// through mapError.
func notFound(err error, op, key string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", core.ErrDatasetNotFound, key)
	}
	return mapError(err, op)
}
