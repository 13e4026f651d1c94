package cache

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/Unlink/database/internal/errs"
	"github.com/Unlink/database/internal/filestore"
)

const objectContentType = "application/json"

// Object stores each value as a single object in a bucket of a
// filestore.Store. Key "a:b" is written to "<dir>/a:b.json".
type Object struct {
	store  filestore.Store
	bucket string
	dir    string
}

// NewObject returns an Object backend writing under dir inside bucket.
func NewObject(store filestore.Store, bucket, dir string) *Object {
	return &Object{store: store, bucket: bucket, dir: dir}
}

func (o *Object) objectKey(key string) string {
	return path.Join(o.dir, key+".json")
}

func (o *Object) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := o.store.GetObject(ctx, o.bucket, o.objectKey(key))
	if errs.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrKindQueryFailed, "failed to read object", err)
	}
	return data, true, nil
}

func (o *Object) Set(ctx context.Context, key string, value []byte) error {
	return o.store.PutObject(ctx, o.bucket, o.objectKey(key), bytes.NewReader(value), int64(len(value)), objectContentType)
}

func (o *Object) Delete(ctx context.Context, key string) error {
	err := o.store.RemoveObject(ctx, o.bucket, o.objectKey(key))
	if errs.IsNotFound(err) {
		return nil
	}
	return err
}
