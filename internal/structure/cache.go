package structure

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/Unlink/database/internal/cache"
	"github.com/Unlink/database/internal/logger"
)

// BuildFunc produces a fresh Model, normally Builder.Build.
type BuildFunc func(ctx context.Context) (*Model, error)

// builds runs at most one build per storage key across every Cache in the
// process. Loads and rebuilds of one database share the same flight.
var builds singleflight.Group

// Cache persists Models in a cache.Storage under a key derived from the
// connection identity.
type Cache struct {
	storage cache.Storage
	key     string
	log     *logger.Logger
}

// NewCache returns a Cache for identity. A nil storage keeps snapshots in
// process memory only.
func NewCache(storage cache.Storage, identity string, log *logger.Logger) *Cache {
	if storage == nil {
		storage = cache.NewMemory()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		storage: storage,
		key:     cache.Namespace(identity) + ":structure",
		log:     log.With().Str("cache_key", cache.Namespace(identity)).Logger(),
	}
}

// Key returns the storage key snapshots are written under.
func (c *Cache) Key() string {
	return c.key
}

// Load returns the stored Model, or runs build once and stores the result.
// built reports whether a build ran to satisfy this call.
func (c *Cache) Load(ctx context.Context, build BuildFunc) (*Model, bool, error) {
	if m, ok := c.get(ctx); ok {
		return m, false, nil
	}

	v, err, _ := builds.Do(c.key, func() (any, error) {
		// A concurrent flight may have stored a snapshot since our miss.
		if m, data, ok := c.read(ctx); ok {
			return flight{owner: c, model: m, data: data}, nil
		}
		return c.buildAndStore(ctx, build)
	})
	if err != nil {
		return nil, false, err
	}
	res := c.adopt(ctx, v.(flight))
	return res.model, res.built, nil
}

// Rebuild runs build regardless of what is stored and replaces the snapshot.
// It joins a build already running for the key instead of starting another.
func (c *Cache) Rebuild(ctx context.Context, build BuildFunc) (*Model, error) {
	for {
		v, err, _ := builds.Do(c.key, func() (any, error) {
			return c.buildAndStore(ctx, build)
		})
		if err != nil {
			return nil, err
		}
		// The joined flight served a stored snapshot; start a fresh one.
		if res := v.(flight); res.built {
			return c.adopt(ctx, res).model, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Invalidate removes the stored snapshot so the next Load rebuilds.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.storage.Delete(ctx, c.key); err != nil {
		return err
	}
	c.log.Debug("structure cache invalidated")
	return nil
}

// flight is the shared result of one builds.Do call.
type flight struct {
	owner *Cache
	model *Model
	data  []byte
	built bool
}

// adopt writes a result produced by another Cache into this Cache's storage,
// which may be a different backend.
func (c *Cache) adopt(ctx context.Context, res flight) flight {
	if res.owner != c && res.data != nil {
		c.put(ctx, res.data)
	}
	return res
}

func (c *Cache) get(ctx context.Context) (*Model, bool) {
	m, _, ok := c.read(ctx)
	return m, ok
}

func (c *Cache) read(ctx context.Context) (*Model, []byte, bool) {
	data, ok, err := c.storage.Get(ctx, c.key)
	if err != nil {
		c.log.WarnWith("structure cache read failed", err, nil)
		return nil, nil, false
	}
	if !ok {
		c.log.Debug("structure cache miss")
		return nil, nil, false
	}
	m, err := DecodeModel(data)
	if err != nil {
		c.log.WarnWith("discarding undecodable structure snapshot", err, nil)
		return nil, nil, false
	}
	c.log.Debug("structure cache hit")
	return m, data, true
}

func (c *Cache) buildAndStore(ctx context.Context, build BuildFunc) (flight, error) {
	m, err := build(ctx)
	if err != nil {
		return flight{}, err
	}
	res := flight{owner: c, model: m, built: true}
	data, err := m.MarshalJSON()
	if err != nil {
		c.log.WarnWith("structure snapshot encode failed", err, nil)
		return res, nil
	}
	res.data = data
	c.put(ctx, data)
	return res, nil
}

func (c *Cache) put(ctx context.Context, data []byte) {
	if err := c.storage.Set(ctx, c.key, data); err != nil {
		c.log.WarnWith("structure cache write failed", err, nil)
		return
	}
	c.log.Debug("structure cache stored")
}
