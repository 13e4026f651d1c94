package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/Unlink/database/internal/errs"
)

// SQL Server error numbers relevant to metadata reads.
// Full list: https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors
const (
	errLoginFailed       = 18456
	errCannotOpenDB      = 4060
	errPermissionDenied  = 229
	errInvalidObjectName = 208
	errLockTimeout       = 1222
)

// mapError translates go-mssqldb errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return errs.Wrap(classify(msErr.Number), fmt.Sprintf("%s: %s", msg, msErr.Message), err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classify(number int32) errs.ErrKind {
	switch number {
	case errLoginFailed, errPermissionDenied:
		return errs.ErrKindPermissionDenied
	case errCannotOpenDB:
		return errs.ErrKindConnectionFailed
	case errInvalidObjectName:
		return errs.ErrKindNotFound
	case errLockTimeout:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
