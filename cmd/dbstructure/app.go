package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/Unlink/database/internal/cache"
	"github.com/Unlink/database/internal/config"
	"github.com/Unlink/database/internal/database"
	"github.com/Unlink/database/internal/filestore/minio"
	"github.com/Unlink/database/internal/logger"
	"github.com/Unlink/database/internal/structure"
)

// app holds everything a command needs. close releases it in reverse
// order of acquisition.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	conn      database.Conn
	structure *structure.Structure
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if v := cmd.String("driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v := cmd.String("dsn"); v != "" {
		cfg.Database.DSN = v
	}
	if v := cmd.String("cache"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, nil
}

func openApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger.New(cfg.LoggerConfig())}

	dbCfg, err := cfg.DatabaseConfig()
	if err != nil {
		return nil, err
	}
	conn, err := database.Open(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	a.conn = conn
	a.closers = append(a.closers, conn.Close)

	storage, err := a.openStorage(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	a.structure = structure.New(conn,
		structure.WithLogger(a.log),
		structure.WithCache(storage),
	)
	return a, nil
}

func (a *app) openStorage(ctx context.Context) (cache.Storage, error) {
	switch a.cfg.Cache.Backend {
	case "", config.CacheMemory:
		return cache.NewMemory(), nil
	case config.CacheRedis:
		r := a.cfg.Cache.Redis
		rc, err := cache.DialRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		return rc, nil
	case config.CacheMinIO:
		fsCfg := a.cfg.FileStoreConfig()
		store, err := minio.New(ctx, fsCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return cache.NewObject(store, fsCfg.Bucket, "snapshots"), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
	}
}

// withApp opens the app for the duration of fn.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, cmd, a)
	}
}
