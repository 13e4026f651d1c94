package database

import (
	"context"
	"database/sql"
)

// OpenSQL opens a database/sql pool for driverName, applies the pool
// settings from cfg and pings it within cfg.ConnectTimeout.
// Errors are returned raw so each adapter can classify them.
func OpenSQL(ctx context.Context, driverName string, cfg *Config) (*sql.DB, error) {
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(int(cfg.MinConns))
	}
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
