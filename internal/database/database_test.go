package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unlink/database/internal/errs"
)

func TestNormalizeDriver(t *testing.T) {
	tests := []struct {
		in   string
		want DriverName
	}{
		{"postgresql", DriverPostgres},
		{" PG ", DriverPostgres},
		{"pgx", DriverPostgres},
		{"mariadb", DriverMySQL},
		{"sqlite3", DriverSQLite},
		{"MSSQL", DriverSQLServer},
		{"oracle", DriverName("oracle")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDriver(tt.in))
		})
	}
}

type stubConn struct{ Driver }

func (stubConn) Ping(context.Context) error { return nil }
func (stubConn) Identity() string           { return "stub" }
func (stubConn) Close()                     {}

func TestOpen(t *testing.T) {
	Register("stubdb", func(_ context.Context, cfg *Config) (Conn, error) {
		return stubConn{}, nil
	})
	assert.Contains(t, Registered(), "stubdb")

	conn, err := Open(context.Background(), &Config{Driver: "STUBDB", DSN: "stub://"})
	require.NoError(t, err)
	assert.Equal(t, "stub", conn.Identity())

	_, err = Open(context.Background(), &Config{Driver: "nope", DSN: "x"})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = Open(context.Background(), &Config{Driver: "stubdb"})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestColumnMeta(t *testing.T) {
	seq := "users_id_seq"
	tests := []struct {
		name    string
		col     ColumnMeta
		autoInc bool
		seq     string
		hasSeq  bool
	}{
		{"unreported autoincrement", ColumnMeta{Name: "id"}, false, "", false},
		{"reported false", ColumnMeta{Name: "id", AutoIncrement: Bool(false)}, false, "", false},
		{"reported true", ColumnMeta{Name: "id", AutoIncrement: Bool(true)}, true, "", false},
		{"string sequence", ColumnMeta{Vendor: map[string]any{VendorSequence: "s"}}, false, "s", true},
		{"pointer sequence", ColumnMeta{Vendor: map[string]any{VendorSequence: &seq}}, false, seq, true},
		{"nil pointer sequence", ColumnMeta{Vendor: map[string]any{VendorSequence: (*string)(nil)}}, false, "", false},
		{"empty sequence", ColumnMeta{Vendor: map[string]any{VendorSequence: ""}}, false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.autoInc, tt.col.IsAutoIncrement())
			got, ok := tt.col.SequenceName()
			assert.Equal(t, tt.hasSeq, ok)
			assert.Equal(t, tt.seq, got)
		})
	}
}
