package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/vietddude/syncgate/internal/sync/metrics"
)

const probeKey = Namespace + "probe"

// Adapter wraps a Backend with JSON serialization and the never-throws
// contract: every failure degrades to "as if absent" and is reported as a
// boolean, never an error. It is the only component that talks to a
// Backend directly.
//
// The embedded mutex is the persistence-layer lock. The cache store and
// offline queue hold it across their full read-mutate-persist cycles so
// the persisted collections can never interleave; adapter methods do not
// lock on their own.
type Adapter struct {
	sync.Mutex

	backend  Backend
	log      *slog.Logger
	evict    func() int
	evicting bool
}

// NewAdapter creates an adapter over the given backend.
func NewAdapter(backend Backend, log *slog.Logger) *Adapter {
	return &Adapter{backend: backend, log: log}
}

// SetEvictor registers the eviction hook invoked on a quota-exceeded
// write. The hook runs with the layer lock already held and must not
// re-acquire it. The control layer wires this to the cache store's purge.
func (a *Adapter) SetEvictor(fn func() int) {
	a.evict = fn
}

// IsAvailable probes the backend with a real write+delete cycle. It is
// cheap enough to call before every write and never returns an error.
func (a *Adapter) IsAvailable() bool {
	a.Lock()
	defer a.Unlock()
	if err := a.backend.Set(probeKey, "1"); err != nil {
		return false
	}
	if err := a.backend.Remove(probeKey); err != nil {
		return false
	}
	return true
}

// Get decodes the stored value into out. It returns false when the key is
// absent, the backend fails, or the stored value is not valid JSON; a
// malformed value is logged and removed so it cannot fail again.
// Caller holds the layer lock.
func (a *Adapter) Get(key string, out any) bool {
	raw, ok, err := a.backend.Get(key)
	if err != nil {
		a.log.Debug("store read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		a.log.Warn("discarding malformed stored value", "key", key, "error", err)
		_ = a.backend.Remove(key)
		return false
	}
	return true
}

// Set encodes value as JSON and writes it. On a quota-exceeded failure it
// invokes the registered evictor exactly once and retries exactly once.
// Caller holds the layer lock.
func (a *Adapter) Set(key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		a.log.Warn("failed to encode value for store", "key", key, "error", err)
		return false
	}
	return a.setRaw(key, string(raw))
}

// Remove deletes the key, reporting success as a boolean.
// Caller holds the layer lock.
func (a *Adapter) Remove(key string) bool {
	if err := a.backend.Remove(key); err != nil {
		a.log.Debug("store remove failed", "key", key, "error", err)
		return false
	}
	return true
}

// Keys lists stored keys with the given prefix. Failures degrade to an
// empty listing. Caller holds the layer lock.
func (a *Adapter) Keys(prefix string) []string {
	keys, err := a.backend.Keys(prefix)
	if err != nil {
		a.log.Debug("store key listing failed", "prefix", prefix, "error", err)
		return nil
	}
	return keys
}

// RawGet returns the stored value without decoding, for the export
// surface. Caller holds the layer lock.
func (a *Adapter) RawGet(key string) (string, bool) {
	raw, ok, err := a.backend.Get(key)
	if err != nil {
		a.log.Debug("store read failed", "key", key, "error", err)
		return "", false
	}
	return raw, ok
}

// RawSet writes a value verbatim, for the import surface. The same quota
// recovery as Set applies. Caller holds the layer lock.
func (a *Adapter) RawSet(key, value string) bool {
	return a.setRaw(key, value)
}

func (a *Adapter) setRaw(key, value string) bool {
	err := a.backend.Set(key, value)
	if err == nil {
		return true
	}

	if errors.Is(err, ErrQuotaExceeded) && a.evict != nil && !a.evicting {
		a.evicting = true
		removed := a.evict()
		a.evicting = false

		metrics.QuotaRecoveries.Inc()
		a.log.Warn("store quota exceeded, purged expired entries and retrying",
			"key", key, "purged", removed)
		if err = a.backend.Set(key, value); err == nil {
			return true
		}
	}

	metrics.StoreFailures.Inc()
	a.log.Warn("store write failed", "key", key, "error", err)
	return false
}
