package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/Unlink/database/internal/errs"
)

// Redis stores values in a Redis server. Keys are written without
// expiration.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis wraps an existing client. prefix is prepended to every key and
// may be empty.
func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

// DialRedis connects to addr and verifies the server answers PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, mapRedisError(err, "failed to connect to redis")
	}
	return NewRedis(rdb, ""), nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapRedisError(err, "redis get")
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return mapRedisError(err, "redis set")
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return mapRedisError(err, "redis del")
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func mapRedisError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
