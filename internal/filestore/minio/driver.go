// Package minio provides a MinIO implementation of filestore.Store.
package minio

import (
	"context"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Unlink/database/internal/errs"
	"github.com/Unlink/database/internal/filestore"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
}

// New connects to MinIO using the provided Config and returns a Driver.
// cfg.Bucket is created when it does not exist yet.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client}

	if cfg.Bucket == "" {
		if err := d.Ping(ctx); err != nil {
			return nil, err
		}
		return d, nil
	}

	if err := d.ensureBucket(ctx, cfg.Bucket, cfg.Region); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) ensureBucket(ctx context.Context, bucket, region string) error {
	ok, err := d.client.BucketExists(ctx, bucket)
	if err != nil {
		return mapError(err, "failed to check bucket")
	}
	if ok {
		return nil
	}
	if err := d.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: region}); err != nil {
		return mapError(err, "failed to create bucket")
	}
	return nil
}

// --- filestore.Store implementation ---

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	// GetObject is lazy; Stat surfaces NoSuchKey before the caller reads.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to stat object after get")
	}

	return &object{
		ReadCloser: obj,
		info:       toInfo(stat),
	}, nil
}

func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}
	return toInfo(stat), nil
}

func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := d.client.PutObject(ctx, bucket, key, r, size, miniogo.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return mapError(err, "failed to put object")
	}
	return nil
}

func (d *Driver) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := d.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to remove object")
	}
	return nil
}

func toInfo(stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	return &filestore.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}
}

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
