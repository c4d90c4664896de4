// Package store provides the key-value persistence used by the ack tracker
// and by the KeyValueStore unit.
package store

import (
	"context"
	"errors"
)

// KV is a byte-oriented key-value store.
// Implementations must be safe for concurrent use.
type KV interface {
	// Get retrieves a value. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value, overwriting any previous one.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Keys returns every key starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a key doesn't exist.
	ErrNotFound = errors.New("key not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
)

// Open creates a store for a backend name: "memory" (or empty) or
// "sqlite", which requires path.
func Open(backend, path string) (KV, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if path == "" {
			return nil, errors.New("sqlite backend requires a path")
		}
		return NewSQLiteStore(path)
	default:
		return nil, errors.New("unknown store backend: " + backend)
	}
}
