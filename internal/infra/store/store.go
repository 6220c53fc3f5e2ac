// Package store provides the durable key-value layer: a raw Backend
// abstraction over several stores (in-memory, badger, redis, postgres) and
// a JSON Adapter that never fails across its public boundary.
//
// This package contains:
//   - Backend: interface for the raw string-keyed store
//   - MemoryBackend: capacity-limited in-memory store (also the degraded-mode fallback)
//   - BadgerBackend: local on-disk store
//   - RedisBackend / PostgresBackend: shared-store deployments
//   - Adapter: JSON (de)serialization, availability probing, quota recovery
package store

import "errors"

// Namespace prefixes every key owned by this layer.
const Namespace = "syncgate:"

var (
	// ErrQuotaExceeded reports that a write was rejected because the store
	// is full. The Adapter reacts by evicting expired cache entries and
	// retrying once.
	ErrQuotaExceeded = errors.New("store: quota exceeded")

	// ErrUnavailable reports that the store cannot be used at all.
	ErrUnavailable = errors.New("store: unavailable")
)

// Backend is a synchronous string-keyed store with local-storage semantics:
// writes may fail when the store is full or disabled, and callers are
// expected to treat any read failure as "absent".
type Backend interface {
	// Get returns the raw value and whether the key exists.
	Get(key string) (string, bool, error)
	// Set writes the value, returning ErrQuotaExceeded when out of space.
	Set(key, value string) error
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(key string) error
	// Keys lists all keys with the given prefix, in lexical order.
	Keys(prefix string) ([]string, error)
}
