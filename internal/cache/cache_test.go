package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unlink/database/internal/errs"
	"github.com/Unlink/database/internal/filestore"
)

func TestNamespace(t *testing.T) {
	a := Namespace("postgres://app:secret@db/app")
	b := Namespace("postgres://app:secret@db/other")

	assert.Equal(t, a, Namespace("postgres://app:secret@db/app"))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "dbstructure:"))
	assert.NotContains(t, a, "secret")
	assert.Len(t, a, len("dbstructure:")+64)
}

// storageContract runs the behaviour every backend shares.
func storageContract(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"v":1}`)))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":1}`, string(got))

	require.NoError(t, s.Set(ctx, "k", []byte(`{"v":2}`)))
	got, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "k"))
}

func TestMemory(t *testing.T) {
	storageContract(t, NewMemory())
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", in))
	in[0] = 'x'

	out, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(out))
	out[1] = 'y'

	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, m.Len())
}

func TestObject(t *testing.T) {
	fs := newFakeStore()
	o := NewObject(fs, "snapshots", "dbstructure")
	storageContract(t, o)

	require.NoError(t, o.Set(context.Background(), "dbstructure:abc:structure", []byte("{}")))
	assert.Contains(t, fs.keys(), "snapshots/dbstructure/dbstructure:abc:structure.json")
}

func TestObjectPropagatesStoreErrors(t *testing.T) {
	fs := newFakeStore()
	fs.failWith = errs.New(errs.ErrKindPermissionDenied, "denied")
	o := NewObject(fs, "b", "")

	_, _, err := o.Get(context.Background(), "k")
	assert.True(t, errs.IsPermissionDenied(err))
	assert.True(t, errs.IsPermissionDenied(o.Set(context.Background(), "k", nil)))
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	storageContract(t, NewRedis(rdb, "test:"+t.Name()+":"))
}

// fakeStore is an in-memory filestore.Store.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

func (f *fakeStore) Ping(context.Context) error { return f.failWith }
func (f *fakeStore) Close() error               { return nil }

func (f *fakeStore) GetObject(_ context.Context, bucket, key string) (filestore.Object, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key")
	}
	return &fakeObject{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		info:       &filestore.ObjectInfo{Key: key, Size: int64(len(data))},
	}, nil
}

func (f *fakeStore) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	obj, err := f.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return obj.Info(), nil
}

func (f *fakeStore) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	if f.failWith != nil {
		return f.failWith
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeStore) RemoveObject(_ context.Context, bucket, key string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	return nil
}

type fakeObject struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *fakeObject) Info() *filestore.ObjectInfo { return o.info }
