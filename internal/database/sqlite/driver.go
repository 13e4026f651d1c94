package sqlite

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/Unlink/database/internal/database"
)

func init() {
	database.Register(database.DriverSQLite, func(ctx context.Context, cfg *database.Config) (database.Conn, error) {
		return New(ctx, cfg)
	})
}

// Driver is a SQLite implementation of database.Conn backed by modernc.org/sqlite.
type Driver struct {
	db       *sql.DB
	identity string
}

// New opens the SQLite database named by cfg.DSN (a file path or URI).
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := database.OpenSQL(ctx, "sqlite", cfg)
	if err != nil {
		return nil, mapError(err, "failed to open database")
	}
	return &Driver{db: db, identity: cfg.DSN}, nil
}

// NewFromDB wraps an opened pool. In-memory databases must be opened with a
// single connection so every query sees the same database.
func NewFromDB(db *sql.DB, identity string) *Driver {
	return &Driver{db: db, identity: identity}
}

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

// Supports reports no optional capabilities.
func (d *Driver) Supports(database.Capability) bool {
	return false
}

func (d *Driver) Tables(ctx context.Context) ([]database.TableMeta, error) {
	const q = `
		SELECT name, type = 'view'
		FROM sqlite_master
		WHERE type IN ('table', 'view')
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

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

// Columns reads pragma_table_info. A single INTEGER primary key is an alias
// of the rowid and is reported as autoincrement.
func (d *Driver) Columns(ctx context.Context, table string) ([]database.ColumnMeta, error) {
	const q = `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var (
		cols    []database.ColumnMeta
		pkCount int
	)
	for rows.Next() {
		var (
			c        database.ColumnMeta
			notNull  bool
			defValue sql.NullString
			pk       int
		)
		if err := rows.Scan(&c.Name, &c.NativeType, &notNull, &defValue, &pk); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		c.Nullable = !notNull
		c.Primary = pk > 0
		if c.Primary {
			pkCount++
		}
		if defValue.Valid {
			c.Vendor = map[string]any{database.VendorDefault: defValue.String}
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}

	for i := range cols {
		rowid := pkCount == 1 && cols[i].Primary && strings.EqualFold(cols[i].NativeType, "INTEGER")
		cols[i].AutoIncrement = database.Bool(rowid)
	}
	return cols, nil
}

func (d *Driver) ForeignKeys(ctx context.Context, table string) ([]database.ForeignKeyMeta, error) {
	const q = `
		SELECT id, "from", "table", COALESCE("to", '')
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	var fks []database.ForeignKeyMeta
	for rows.Next() {
		var (
			id int
			fk database.ForeignKeyMeta
		)
		if err := rows.Scan(&id, &fk.Local, &fk.Table, &fk.Foreign); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		fk.Name = constraintName(table, id)
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating foreign keys")
	}
	return fks, nil
}
