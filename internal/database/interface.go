package database

import "context"

// Driver is the contract every engine adapter implements.
// The structure builder talks only to this interface; it never imports
// the postgres, mysql, sqlite or sqlserver packages directly.
//
// Drivers return *errs.Error values. Callers above the adapter propagate
// them unchanged and never retry.
type Driver interface {
	// Tables returns every table and view visible to the connection.
	Tables(ctx context.Context) ([]TableMeta, error)

	// Columns returns column metadata for table in ordinal order.
	// table is the FullName when the driver reported one, else Name.
	Columns(ctx context.Context, table string) ([]ColumnMeta, error)

	// ForeignKeys returns the outgoing foreign keys of table.
	ForeignKeys(ctx context.Context, table string) ([]ForeignKeyMeta, error)

	// Supports reports whether the engine has the given capability.
	Supports(c Capability) bool
}

// Conn is a Driver bound to a live connection pool.
type Conn interface {
	Driver

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Identity is a stable string naming the connected database, used to
	// derive structure cache keys. Usually the DSN.
	Identity() string

	// Close releases all resources held by the connection pool.
	Close()
}
