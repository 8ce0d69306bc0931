// Package store provides the durable key-value backends behind the player's
// persistence adapter: in-memory, JSON files on disk, SQLite and Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a named-blob key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Ping reports whether the store is currently usable.
	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend for Open.
type Options struct {
	Kind          string // memory, file, sqlite, redis
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the backend named by opts.Kind.
func Open(opts Options) (Store, error) {
	switch opts.Kind {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(opts.DataDir)
	case "sqlite":
		db := NewSQLite(sqlitePath(opts.DataDir))
		if err := db.Open(); err != nil {
			return nil, err
		}
		return db, nil
	case "redis":
		return NewRedis(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix), nil
	}
	return nil, fmt.Errorf("unknown store kind %q", opts.Kind)
}

// Memory keeps values in process memory. It is the fallback when no durable
// store is configured and the backend used by tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
