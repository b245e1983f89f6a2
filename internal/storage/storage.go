// Package storage defines the key-value persistence used for per-user
// checkout state.
package storage

import (
	"context"
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value stored under key. The boolean is false when the
	// key does not exist.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
