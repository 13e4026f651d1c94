package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver

	"github.com/Unlink/database/internal/database"
)

func init() {
	database.Register(database.DriverMySQL, func(ctx context.Context, cfg *database.Config) (database.Conn, error) {
		return New(ctx, cfg)
	})
}

// Driver is a MySQL / MariaDB implementation of database.Conn backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db       *sql.DB
	identity string
}

// New opens a MySQL connection pool using the provided Config and returns a Driver.
// It pings within cfg.ConnectTimeout before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := database.OpenSQL(ctx, "mysql", cfg)
	if err != nil {
		return nil, mapError(err, "failed to connect")
	}
	return &Driver{db: db, identity: cfg.DSN}, nil
}

// --- database.Conn implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Identity() string {
	return d.identity
}

// Supports reports no optional capabilities: MySQL has neither sequences
// nor schemas distinct from the connected database.
func (d *Driver) Supports(database.Capability) bool {
	return false
}

func (d *Driver) Tables(ctx context.Context) ([]database.TableMeta, error) {
	const q = `
		SELECT table_name,
		       table_type = 'VIEW'
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		ORDER BY table_name`

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []database.TableMeta
	for rows.Next() {
		var t database.TableMeta
		if err := rows.Scan(&t.Name, &t.View); err != nil {
			return nil, mapError(err, "failed to scan table")
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func (d *Driver) Columns(ctx context.Context, table string) ([]database.ColumnMeta, error) {
	const q = `
		SELECT column_name,
		       column_type,
		       is_nullable = 'YES',
		       column_key = 'PRI',
		       extra LIKE '%auto_increment%',
		       column_default
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name   = ?
		ORDER BY ordinal_position`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.ColumnMeta
	for rows.Next() {
		var (
			c        database.ColumnMeta
			autoInc  bool
			defValue sql.NullString
		)
		if err := rows.Scan(&c.Name, &c.NativeType, &c.Nullable, &c.Primary, &autoInc, &defValue); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		c.AutoIncrement = database.Bool(autoInc)
		if defValue.Valid {
			c.Vendor = map[string]any{database.VendorDefault: defValue.String}
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	return cols, nil
}

func (d *Driver) ForeignKeys(ctx context.Context, table string) ([]database.ForeignKeyMeta, error) {
	const q = `
		SELECT constraint_name,
		       column_name,
		       referenced_table_name,
		       referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema           = DATABASE()
		  AND table_name             = ?
		  AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	var fks []database.ForeignKeyMeta
	for rows.Next() {
		var fk database.ForeignKeyMeta
		if err := rows.Scan(&fk.Name, &fk.Local, &fk.Table, &fk.Foreign); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating foreign keys")
	}
	return fks, nil
}
