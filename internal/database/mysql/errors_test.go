package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/Unlink/database/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, errs.ErrKindPermissionDenied},
		{"unknown database", &mysql.MySQLError{Number: 1049, Message: "Unknown database"}, errs.ErrKindConnectionFailed},
		{"no such table", &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}, errs.ErrKindNotFound},
		{"syntax", &mysql.MySQLError{Number: 1064, Message: "syntax"}, errs.ErrKindQueryFailed},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "fetch columns")
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, mapError(nil, "noop"))
}

func TestSupports(t *testing.T) {
	d := &Driver{}
	assert.False(t, d.Supports("sequences"))
	assert.False(t, d.Supports("schemas"))
}
