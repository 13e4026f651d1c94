// Package structure keeps a cached, lazily built reflection of a database
// schema: tables, views, primary keys, sequences and foreign keys in both
// directions.
//
// Usage:
//
//	conn, err := database.Open(ctx, cfg)
//	if err != nil { ... }
//	s := structure.New(conn, structure.WithCache(cache.NewMemory()))
//
//	pk, err := s.PrimaryKey(ctx, "Orders")
//	ref, ok, err := s.BelongsToReference(ctx, "orders", "user_id")
//
// Table names are matched case-insensitively and through aliases. An
// unknown name triggers at most one rebuild per Structure before failing
// with errs.ErrKindTableNotFound.
package structure

import (
	"context"
	"strings"
	"sync"

	"github.com/Unlink/database/internal/cache"
	"github.com/Unlink/database/internal/database"
	"github.com/Unlink/database/internal/errs"
	"github.com/Unlink/database/internal/logger"
)

// maxResolveAttempts bounds name resolution: the first lookup plus one
// lookup after a forced rebuild.
const maxResolveAttempts = 2

// Structure is the read-only query API over a Model. It is safe for
// concurrent use.
type Structure struct {
	driver  database.Driver
	builder *Builder
	cache   *Cache
	log     *logger.Logger

	storage  cache.Storage
	identity string

	mu      sync.RWMutex
	model   *Model
	rebuilt bool
}

// Option configures a Structure.
type Option func(*Structure)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(s *Structure) { s.log = l }
}

// WithCache sets the storage backend for snapshots. The default keeps them
// in process memory.
func WithCache(storage cache.Storage) Option {
	return func(s *Structure) { s.storage = storage }
}

// WithIdentity overrides the connection identity the cache key is derived
// from. Drivers implementing Identity() are used otherwise.
func WithIdentity(identity string) Option {
	return func(s *Structure) { s.identity = identity }
}

type identifier interface {
	Identity() string
}

// New returns a Structure reading from driver. Nothing is loaded until the
// first query.
func New(driver database.Driver, opts ...Option) *Structure {
	s := &Structure{driver: driver, log: logger.Nop()}
	if id, ok := driver.(identifier); ok {
		s.identity = id.Identity()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.builder = NewBuilder(driver, s.log)
	s.cache = NewCache(s.storage, s.identity, s.log)
	return s
}

// IsRebuilt reports whether this Structure has built a model from the
// driver, either on a cache miss or through Rebuild.
func (s *Structure) IsRebuilt() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rebuilt
}

// Rebuild builds a fresh model from the driver and stores it, regardless of
// cached state.
func (s *Structure) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx)
}

// Invalidate drops both the stored snapshot and the in-memory model. The
// next query loads again.
func (s *Structure) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = nil
	return s.cache.Invalidate(ctx)
}

func (s *Structure) rebuildLocked(ctx context.Context) error {
	m, err := s.cache.Rebuild(ctx, s.builder.Build)
	if err != nil {
		return err
	}
	s.model = m
	s.rebuilt = true
	return nil
}

// load returns the current model, loading it from the cache or the driver
// on first use.
func (s *Structure) load(ctx context.Context) (*Model, error) {
	s.mu.RLock()
	m := s.model
	s.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		return s.model, nil
	}
	m, built, err := s.cache.Load(ctx, s.builder.Build)
	if err != nil {
		return nil, err
	}
	s.model = m
	if built {
		s.rebuilt = true
	}
	return m, nil
}

// forceRebuild rebuilds after a failed lookup in stale. It does nothing
// when another caller already replaced stale or a build already happened.
func (s *Structure) forceRebuild(ctx context.Context, stale *Model, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rebuilt || s.model != stale {
		return nil
	}
	s.log.With().Str("table", table).Logger().Warn("unknown table, rebuilding structure")
	return s.rebuildLocked(ctx)
}

// resolve maps table to its canonical key, rebuilding at most once.
func (s *Structure) resolve(ctx context.Context, table string) (*Model, string, error) {
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		m, err := s.load(ctx)
		if err != nil {
			return nil, "", err
		}
		if key, ok := m.Resolve(table); ok {
			return m, key, nil
		}
		if attempt == maxResolveAttempts || s.IsRebuilt() {
			break
		}
		if err := s.forceRebuild(ctx, m, table); err != nil {
			return nil, "", err
		}
	}
	return nil, "", errs.TableNotFound(table)
}

// Tables lists every table and view in build order. Name is the reported
// name when its case differs from the canonical key.
func (s *Structure) Tables(ctx context.Context) ([]TableSummary, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.Tables(), nil
}

// PrimaryKey returns the primary key columns of table, or nil when it has
// none. Views never have one.
func (s *Structure) PrimaryKey(ctx context.Context, table string) (PrimaryKey, error) {
	m, key, err := s.resolve(ctx, table)
	if err != nil {
		return nil, err
	}
	t, _ := m.Table(key)
	return t.Primary, nil
}

// PrimaryKeySequence returns the sequence feeding the single-column primary
// key of table. It reports false without touching the model when the driver
// has no sequences.
func (s *Structure) PrimaryKeySequence(ctx context.Context, table string) (string, bool, error) {
	if !s.driver.Supports(database.CapabilitySequence) {
		return "", false, nil
	}
	m, key, err := s.resolve(ctx, table)
	if err != nil {
		return "", false, err
	}
	t, _ := m.Table(key)
	if _, ok := t.Primary.Scalar(); !ok || t.Sequence == nil {
		return "", false, nil
	}
	return t.Sequence.Name, true, nil
}

// HasManyReferences returns the tables referencing table and their local
// columns, shortest table name first.
func (s *Structure) HasManyReferences(ctx context.Context, table string) ([]TableRef, error) {
	m, key, err := s.resolve(ctx, table)
	if err != nil {
		return nil, err
	}
	return m.HasMany(key), nil
}

// HasManyReference returns the columns of target that reference table.
// Both names are resolved; ok is false when target holds no reference.
func (s *Structure) HasManyReference(ctx context.Context, table, target string) ([]string, bool, error) {
	m, key, err := s.resolve(ctx, table)
	if err != nil {
		return nil, false, err
	}
	latest, targetKey, err := s.resolve(ctx, target)
	if err != nil {
		return nil, false, err
	}
	if latest != m {
		// Resolving target rebuilt the model.
		var ok bool
		if key, ok = latest.Resolve(table); !ok {
			return nil, false, errs.TableNotFound(table)
		}
		m = latest
	}
	for _, ref := range m.HasMany(key) {
		if strings.EqualFold(ref.Table, targetKey) {
			return ref.Columns, true, nil
		}
	}
	return nil, false, nil
}

// BelongsToReferences returns the outgoing references of table, shortest
// column name first.
func (s *Structure) BelongsToReferences(ctx context.Context, table string) ([]ColumnRef, error) {
	m, key, err := s.resolve(ctx, table)
	if err != nil {
		return nil, err
	}
	return m.BelongsTo(key), nil
}

// BelongsToReference returns the table referenced by column of table.
// column is matched case-insensitively.
func (s *Structure) BelongsToReference(ctx context.Context, table, column string) (string, bool, error) {
	m, key, err := s.resolve(ctx, table)
	if err != nil {
		return "", false, err
	}
	for _, ref := range m.BelongsTo(key) {
		if strings.EqualFold(ref.Column, column) {
			return ref.Table, true, nil
		}
	}
	return "", false, nil
}
