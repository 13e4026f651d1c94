// Package filestore defines the interface for object storage backends
// used to persist structure snapshots.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin", "dbstructure")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	err = store.PutObject(ctx, cfg.Bucket, "snapshot.json", r, size, "application/json")
package filestore

import (
	"context"
	"io"
)

// Store is the interface all object storage providers implement.
// Missing objects are reported as errs.ErrKindNotFound.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object without downloading it.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// PutObject uploads size bytes read from r. Use size -1 when unknown.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error

	// RemoveObject deletes the object. Removing a missing object is not an error.
	RemoveObject(ctx context.Context, bucket, key string) error
}
