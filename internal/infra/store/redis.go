package store

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// Redis stores values as plain string keys in a Redis database, so several
// server instances can share one persisted player.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis store. Connection errors surface on first use.
func NewRedis(addr, password string, db int, prefix string) *Redis {
	if addr == "" {
		addr = "localhost:6379"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: prefix,
	}
}

// Get returns the value stored for key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

// Set stores value without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Ping checks the server connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
