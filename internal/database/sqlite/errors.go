package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Unlink/database/internal/errs"
)

// mapError translates modernc.org/sqlite errors into *errs.Error.
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

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return errs.Wrap(classify(sqliteErr.Code()), fmt.Sprintf("%s: %s", msg, sqlite.ErrorCodeString[sqliteErr.Code()]), err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// classify maps a primary SQLite result code to an ErrKind.
// Extended codes carry the primary code in the low byte.
func classify(code int) errs.ErrKind {
	switch code & 0xff {
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
		return errs.ErrKindConnectionFailed
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
		return errs.ErrKindPermissionDenied
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return errs.ErrKindTimeout
	case sqlite3.SQLITE_NOTFOUND:
		return errs.ErrKindNotFound
	default:
		return errs.ErrKindQueryFailed
	}
}

// constraintName synthesises a name for an unnamed SQLite foreign key.
func constraintName(table string, id int) string {
	return "fk_" + table + "_" + strconv.Itoa(id)
}
