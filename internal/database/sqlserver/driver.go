package sqlserver

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // register "sqlserver" driver

	"github.com/Unlink/database/internal/database"
)

func init() {
	database.Register(database.DriverSQLServer, func(ctx context.Context, cfg *database.Config) (database.Conn, error) {
		return New(ctx, cfg)
	})
}

// Driver is a Microsoft SQL Server implementation of database.Conn.
// Table names are reported schema-qualified ("dbo.Users").
type Driver struct {
	db       *sql.DB
	identity string
}

// New opens a SQL Server connection pool using the provided Config.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := database.OpenSQL(ctx, "sqlserver", cfg)
	if err != nil {
		return nil, mapError(err, "failed to connect")
	}
	return &Driver{db: db, identity: cfg.DSN}, nil
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

// Supports reports schema support. Identity columns are not bound to
// named sequences, so CapabilitySequence is false.
func (d *Driver) Supports(c database.Capability) bool {
	return c == database.CapabilitySchemas
}

func (d *Driver) Tables(ctx context.Context) ([]database.TableMeta, error) {
	const q = `
		SELECT TABLE_NAME,
		       TABLE_SCHEMA + '.' + TABLE_NAME,
		       CASE WHEN TABLE_TYPE = 'VIEW' THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.TABLES
		ORDER BY TABLE_SCHEMA, TABLE_NAME`

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []database.TableMeta
	for rows.Next() {
		var t database.TableMeta
		if err := rows.Scan(&t.Name, &t.FullName, &t.View); err != nil {
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
		SELECT c.name,
		       ty.name,
		       c.is_nullable,
		       CASE WHEN ic.column_id IS NULL THEN 0 ELSE 1 END,
		       c.is_identity,
		       OBJECT_DEFINITION(c.default_object_id)
		FROM sys.columns AS c
		JOIN sys.types AS ty ON ty.user_type_id = c.user_type_id
		LEFT JOIN sys.indexes AS i
		       ON i.object_id = c.object_id AND i.is_primary_key = 1
		LEFT JOIN sys.index_columns AS ic
		       ON ic.object_id = i.object_id AND ic.index_id = i.index_id AND ic.column_id = c.column_id
		WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + '.' + QUOTENAME(@table))
		ORDER BY c.column_id`

	schema, name := splitName(table)
	rows, err := d.db.QueryContext(ctx, q, sql.Named("schema", schema), sql.Named("table", name))
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.ColumnMeta
	for rows.Next() {
		var (
			c        database.ColumnMeta
			identity bool
			defValue sql.NullString
		)
		if err := rows.Scan(&c.Name, &c.NativeType, &c.Nullable, &c.Primary, &identity, &defValue); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		c.AutoIncrement = database.Bool(identity)
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
		SELECT fk.name,
		       pc.name,
		       SCHEMA_NAME(rt.schema_id) + '.' + rt.name,
		       rc.name
		FROM sys.foreign_keys AS fk
		JOIN sys.foreign_key_columns AS fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.columns AS pc
		  ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.tables AS rt ON rt.object_id = fkc.referenced_object_id
		JOIN sys.columns AS rc
		  ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE fk.parent_object_id = OBJECT_ID(QUOTENAME(@schema) + '.' + QUOTENAME(@table))
		ORDER BY fk.name, fkc.constraint_column_id`

	schema, name := splitName(table)
	rows, err := d.db.QueryContext(ctx, q, sql.Named("schema", schema), sql.Named("table", name))
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

// splitName splits "schema.table"; unqualified names belong to dbo.
func splitName(table string) (string, string) {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return schema, name
	}
	return "dbo", table
}
