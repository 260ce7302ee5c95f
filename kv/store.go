// Package kv adapts the remote key-value store the auth core persists
// through. Sessions, one-time OAuth state tokens, and rate-limit windows
// all live behind this boundary; the core holds no other mutable state.
package kv

import "context"

// Store is the operation surface the auth core requires from the
// key-value store: plain reads, writes with per-key expiry, deletes, and
// an atomic consume for one-time tokens.
type Store interface {
	// Get returns the value at key, or errors.ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// SetEx writes value under key with the given TTL.
	SetEx(ctx context.Context, key, value string, ttlSeconds int) error

	// GetDel atomically reads and removes key in a single round trip,
	// returning errors.ErrNotFound when the key does not exist. This is
	// the consume primitive for single-use tokens: two concurrent
	// consumers can never both observe the value.
	GetDel(ctx context.Context, key string) (string, error)

	// Del removes key, reporting whether it existed.
	Del(ctx context.Context, key string) (bool, error)
}
