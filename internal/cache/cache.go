// Package cache provides the key/value storage backends used to persist
// structure snapshots between process lifetimes.
//
// Backends are pass-through value stores: they hold no TTL and never
// expire entries on their own. Staleness is handled by the caller through
// explicit Delete.
//
// Usage:
//
//	store := cache.NewRedis(rdb, "")
//	key := cache.Namespace(conn.Identity()) + ":structure"
//	data, ok, err := store.Get(ctx, key)
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Storage is implemented by every cache backend.
type Storage interface {
	// Get returns the stored value. ok is false when the key is absent;
	// a miss is not an error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

const namespacePrefix = "dbstructure"

// Namespace derives a stable storage namespace from a connection identity
// (typically its DSN). The identity is hashed so credentials never reach
// the backend, and distinct identities never share a namespace.
func Namespace(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return namespacePrefix + ":" + hex.EncodeToString(sum[:])
}
