package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/Unlink/database/internal/database"
	"github.com/Unlink/database/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"canceled", context.Canceled, errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"connection class", &pgconn.PgError{Code: "08006", Message: "connection failure"}, errs.ErrKindConnectionFailed},
		{"auth class", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, errs.ErrKindPermissionDenied},
		{"insufficient privilege", &pgconn.PgError{Code: "42501", Message: "permission denied"}, errs.ErrKindPermissionDenied},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, errs.ErrKindNotFound},
		{"statement timeout", &pgconn.PgError{Code: "57014", Message: "canceling statement"}, errs.ErrKindTimeout},
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax error"}, errs.ErrKindQueryFailed},
		{"network", errors.New("dial tcp: i/o timeout"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "list tables")
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, mapError(nil, "noop"))
}

func TestSplitName(t *testing.T) {
	d := &Driver{}
	tests := []struct {
		in, schema, name string
	}{
		{"public.users", "public", "users"},
		{"users", "public", "users"},
		{"Sales.Order", "Sales", "Order"},
	}
	for _, tt := range tests {
		schema, name := d.splitName(tt.in)
		assert.Equal(t, tt.schema, schema)
		assert.Equal(t, tt.name, name)
	}
}

func TestSupports(t *testing.T) {
	d := &Driver{}
	assert.True(t, d.Supports(database.CapabilitySequence))
	assert.True(t, d.Supports(database.CapabilitySchemas))
	assert.False(t, d.Supports("returning"))
}
