package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Unlink/database/internal/errs"
)

// PostgreSQL SQLSTATE classes and codes relevant to metadata reads.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection       = "08"
	pgClassInvalidAuth      = "28"
	pgErrInsufficientPrivs  = "42501"
	pgErrUndefinedTable     = "42P01"
	pgErrInvalidSchemaName  = "3F000"
	pgErrQueryCanceled      = "57014"
	pgErrCannotConnectNow   = "57P03"
	pgErrAdminShutdown      = "57P01"
	pgErrTooManyConnections = "53300"
	pgErrInvalidCatalogName = "3D000"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classify(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classify maps a SQLSTATE code to an ErrKind.
func classify(code string) errs.ErrKind {
	switch {
	case len(code) >= 2 && code[:2] == pgClassConnection:
		return errs.ErrKindConnectionFailed
	case len(code) >= 2 && code[:2] == pgClassInvalidAuth:
		return errs.ErrKindPermissionDenied
	}

	switch code {
	case pgErrInsufficientPrivs:
		return errs.ErrKindPermissionDenied
	case pgErrUndefinedTable, pgErrInvalidSchemaName:
		return errs.ErrKindNotFound
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	case pgErrCannotConnectNow, pgErrAdminShutdown, pgErrTooManyConnections, pgErrInvalidCatalogName:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
