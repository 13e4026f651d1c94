package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Unlink/database/internal/database"
	"github.com/Unlink/database/internal/errs"
)

func init() {
	database.Register(database.DriverPostgres, func(ctx context.Context, cfg *database.Config) (database.Conn, error) {
		return New(ctx, cfg)
	})
}

// Driver is a PostgreSQL implementation of database.Conn backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool     *pgxpool.Pool
	identity string
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	d := &Driver{pool: pool, identity: cfg.DSN}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// --- database.Conn implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (d *Driver) Close() {
	d.pool.Close()
}

// Identity returns the DSN the pool was created from.
func (d *Driver) Identity() string {
	return d.identity
}

// Supports reports sequence and schema support; PostgreSQL has both.
func (d *Driver) Supports(c database.Capability) bool {
	switch c {
	case database.CapabilitySequence, database.CapabilitySchemas:
		return true
	default:
		return false
	}
}

// Tables lists tables, partitioned tables, views and materialized views in
// every schema on the search path. FullName is always schema-qualified.
func (d *Driver) Tables(ctx context.Context) ([]database.TableMeta, error) {
	const q = `
		SELECT DISTINCT ON (c.relname)
		       c.relname::text                        AS name,
		       n.nspname::text || '.' || c.relname::text AS full_name,
		       c.relkind IN ('v', 'm')                AS view
		FROM pg_catalog.pg_class AS c
		JOIN pg_catalog.pg_namespace AS n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p', 'v', 'm')
		  AND n.nspname = ANY (pg_catalog.current_schemas(false))
		ORDER BY c.relname, array_position(pg_catalog.current_schemas(false), n.nspname)`

	rows, err := d.pool.Query(ctx, q)
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

// Columns returns column metadata for table ("schema.name" or "name").
// Serial and identity columns carry their sequence in Vendor.
func (d *Driver) Columns(ctx context.Context, table string) ([]database.ColumnMeta, error) {
	const q = `
		SELECT a.attname::text                                        AS name,
		       pg_catalog.format_type(a.atttypid, a.atttypmod)        AS native_type,
		       NOT a.attnotnull                                       AS nullable,
		       COALESCE(con.contype = 'p', false)                     AS is_primary,
		       a.attidentity <> ''
		         OR COALESCE(pg_catalog.pg_get_expr(ad.adbin, ad.adrelid) LIKE 'nextval(%', false)
		                                                              AS autoincrement,
		       pg_catalog.pg_get_expr(ad.adbin, ad.adrelid)           AS column_default,
		       pg_catalog.pg_get_serial_sequence(
		         quote_ident(n.nspname) || '.' || quote_ident(c.relname), a.attname)
		                                                              AS sequence
		FROM pg_catalog.pg_attribute AS a
		JOIN pg_catalog.pg_class AS c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace AS n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_attrdef AS ad
		       ON ad.adrelid = c.oid AND ad.adnum = a.attnum
		LEFT JOIN pg_catalog.pg_constraint AS con
		       ON con.conrelid = c.oid AND con.contype = 'p' AND a.attnum = ANY (con.conkey)
		WHERE n.nspname = $1
		  AND c.relname = $2
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY a.attnum`

	schema, name := d.splitName(table)
	rows, err := d.pool.Query(ctx, q, schema, name)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.ColumnMeta
	for rows.Next() {
		var (
			c        database.ColumnMeta
			autoInc  bool
			defValue *string
			sequence *string
		)
		if err := rows.Scan(&c.Name, &c.NativeType, &c.Nullable, &c.Primary, &autoInc, &defValue, &sequence); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		c.AutoIncrement = database.Bool(autoInc)
		c.Vendor = map[string]any{}
		if sequence != nil {
			c.Vendor[database.VendorSequence] = *sequence
		}
		if defValue != nil {
			c.Vendor[database.VendorDefault] = *defValue
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	return cols, nil
}

// ForeignKeys returns one row per column pair of each outgoing constraint.
// Referenced tables are schema-qualified to match Tables().FullName.
func (d *Driver) ForeignKeys(ctx context.Context, table string) ([]database.ForeignKeyMeta, error) {
	const q = `
		SELECT con.conname::text                           AS name,
		       la.attname::text                            AS local,
		       fn.nspname::text || '.' || fc.relname::text AS ref_table,
		       fa.attname::text                            AS ref_column
		FROM pg_catalog.pg_constraint AS con
		JOIN pg_catalog.pg_class AS c      ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace AS n  ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_class AS fc     ON fc.oid = con.confrelid
		JOIN pg_catalog.pg_namespace AS fn ON fn.oid = fc.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(local_num, ref_num, ord)
		JOIN pg_catalog.pg_attribute AS la ON la.attrelid = con.conrelid  AND la.attnum = k.local_num
		JOIN pg_catalog.pg_attribute AS fa ON fa.attrelid = con.confrelid AND fa.attnum = k.ref_num
		WHERE con.contype = 'f'
		  AND n.nspname = $1
		  AND c.relname = $2
		ORDER BY con.conname, k.ord`

	schema, name := d.splitName(table)
	rows, err := d.pool.Query(ctx, q, schema, name)
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

// splitName splits "schema.table" at the first dot. Unqualified names
// resolve against the public schema.
func (d *Driver) splitName(table string) (string, string) {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return schema, name
	}
	return "public", table
}
