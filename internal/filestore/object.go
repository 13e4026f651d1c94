package filestore

import (
	"io"
	"time"
)

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	// Key is the full object path within the bucket.
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	ContentType  string
	ETag         string
	LastModified time.Time
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading.
type Object interface {
	io.ReadCloser

	Info() *ObjectInfo
}
