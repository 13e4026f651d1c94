package structure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unlink/database/internal/cache"
)

// flakyStorage fails the operations it is told to.
type flakyStorage struct {
	*cache.Memory
	getErr error
	setErr error
}

func (f *flakyStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyStorage) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Memory.Set(ctx, key, value)
}

func TestCache_LoadBuildsOnceThenHits(t *testing.T) {
	ctx := context.Background()
	d := userOrderDriver()
	c := NewCache(cache.NewMemory(), t.Name(), nil)
	b := NewBuilder(d, nil)

	m, built, err := c.Load(ctx, b.Build)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 2, m.Len())

	m2, built, err := c.Load(ctx, b.Build)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, m.Tables(), m2.Tables())
	assert.Equal(t, 1, d.builds())
}

func TestCache_KeyDerivesFromIdentity(t *testing.T) {
	a := NewCache(nil, "postgres://db-a", nil)
	b := NewCache(nil, "postgres://db-b", nil)

	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), NewCache(nil, "postgres://db-a", nil).Key())
	assert.Equal(t, cache.Namespace("postgres://db-a")+":structure", a.Key())
}

func TestCache_SharedStorageAcrossInstances(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemory()
	d := userOrderDriver()

	_, built, err := NewCache(storage, t.Name(), nil).Load(ctx, NewBuilder(d, nil).Build)
	require.NoError(t, err)
	require.True(t, built)

	_, built, err = NewCache(storage, t.Name(), nil).Load(ctx, NewBuilder(d, nil).Build)
	require.NoError(t, err)
	assert.False(t, built)

	_, built, err = NewCache(storage, t.Name()+"-other", nil).Load(ctx, NewBuilder(d, nil).Build)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 2, d.builds())
}

func TestCache_UndecodableSnapshotIsMiss(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemory()
	c := NewCache(storage, t.Name(), nil)
	require.NoError(t, storage.Set(ctx, c.Key(), []byte("garbage")))

	d := userOrderDriver()
	m, built, err := c.Load(ctx, NewBuilder(d, nil).Build)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 2, m.Len())

	data, ok, err := storage.Get(ctx, c.Key())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = DecodeModel(data)
	assert.NoError(t, err, "snapshot must be replaced")
}

func TestCache_StorageFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	storage := &flakyStorage{
		Memory: cache.NewMemory(),
		getErr: errors.New("redis: connection refused"),
		setErr: errors.New("redis: connection refused"),
	}
	d := userOrderDriver()
	c := NewCache(storage, t.Name(), nil)

	m, built, err := c.Load(ctx, NewBuilder(d, nil).Build)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 2, m.Len())
	assert.Zero(t, storage.Len())
}

func TestCache_BuildErrorIsNotStored(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemory()
	d := userOrderDriver()
	d.tablesErr = errors.New("connection reset")

	_, _, err := NewCache(storage, t.Name(), nil).Load(ctx, NewBuilder(d, nil).Build)
	assert.EqualError(t, err, "connection reset")
	assert.Zero(t, storage.Len())
}

func TestCache_RebuildAndInvalidate(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemory()
	d := userOrderDriver()
	c := NewCache(storage, t.Name(), nil)
	b := NewBuilder(d, nil)

	_, _, err := c.Load(ctx, b.Build)
	require.NoError(t, err)

	_, err = c.Rebuild(ctx, b.Build)
	require.NoError(t, err)
	assert.Equal(t, 2, d.builds())

	require.NoError(t, c.Invalidate(ctx))
	assert.Zero(t, storage.Len())

	_, built, err := c.Load(ctx, b.Build)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 3, d.builds())
}

func TestCache_LoadAndRebuildShareOneBuild(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemory()
	d := userOrderDriver()
	d.delay = 100 * time.Millisecond
	b := NewBuilder(d, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m, _, err := NewCache(storage, t.Name(), nil).Load(ctx, b.Build)
		assert.NoError(t, err)
		assert.Equal(t, 2, m.Len())
	}()
	go func() {
		defer wg.Done()
		m, err := NewCache(storage, t.Name(), nil).Rebuild(ctx, b.Build)
		assert.NoError(t, err)
		assert.Equal(t, 2, m.Len())
	}()
	wg.Wait()

	assert.Equal(t, 1, d.builds())
}

func TestCache_SharedBuildReachesEveryBackend(t *testing.T) {
	ctx := context.Background()
	d := userOrderDriver()
	d.delay = 50 * time.Millisecond
	b := NewBuilder(d, nil)
	storages := []*cache.Memory{cache.NewMemory(), cache.NewMemory()}

	var wg sync.WaitGroup
	for _, storage := range storages {
		wg.Add(1)
		go func(storage *cache.Memory) {
			defer wg.Done()
			_, _, err := NewCache(storage, t.Name(), nil).Load(ctx, b.Build)
			assert.NoError(t, err)
		}(storage)
	}
	wg.Wait()

	for i, storage := range storages {
		assert.Equal(t, 1, storage.Len(), "storage %d", i)
	}
}
