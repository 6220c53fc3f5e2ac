// Package cache stores API results with TTL-class expiry on top of the
// durable adapter. All entries live inside one serialized mapping under a
// single backend key to bound the number of raw store keys used.
package cache

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vietddude/syncgate/internal/core/domain"
	"github.com/vietddude/syncgate/internal/infra/store"
	"github.com/vietddude/syncgate/internal/sync/metrics"
)

// StorageKey is the single backend key holding the serialized mapping.
const StorageKey = store.Namespace + "cache"

// Config holds the named retention durations.
type Config struct {
	Short  time.Duration `yaml:"short"`
	Medium time.Duration `yaml:"medium"`
	Long   time.Duration `yaml:"long"`
}

// DefaultConfig matches the documented classes: minutes, tens of minutes,
// a day.
var DefaultConfig = Config{
	Short:  5 * time.Minute,
	Medium: 30 * time.Minute,
	Long:   24 * time.Hour,
}

// DurationFor maps a TTL class to its duration. Unknown classes get medium.
func (c Config) DurationFor(class domain.TTLClass) time.Duration {
	switch class {
	case domain.TTLShort:
		return c.Short
	case domain.TTLLong:
		return c.Long
	default:
		return c.Medium
	}
}

// Store is the TTL cache. Every operation holds the persistence-layer
// lock across its full read-mutate-persist cycle.
type Store struct {
	adapter *store.Adapter
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

// New creates a cache store over the adapter.
func New(adapter *store.Adapter, cfg Config, log *slog.Logger) *Store {
	if cfg.Short <= 0 {
		cfg.Short = DefaultConfig.Short
	}
	if cfg.Medium <= 0 {
		cfg.Medium = DefaultConfig.Medium
	}
	if cfg.Long <= 0 {
		cfg.Long = DefaultConfig.Long
	}
	return &Store{
		adapter: adapter,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Get decodes the cached payload for key into out and reports a hit.
// An entry read at or past its expiry is removed from the persisted
// mapping and reported as a miss; stale data is never served.
func (s *Store) Get(key string, out any) bool {
	s.adapter.Lock()
	defer s.adapter.Unlock()

	entries := s.load()
	entry, ok := entries[key]
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return false
	}

	if entry.Expired(s.now()) {
		delete(entries, key)
		s.persist(entries)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return false
	}

	if err := json.Unmarshal(entry.Data, out); err != nil {
		s.log.Warn("discarding undecodable cache entry", "key", key, "error", err)
		delete(entries, key)
		s.persist(entries)
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return true
}

// Set stores value under key with the expiry implied by class. Entries
// already past their expiry are dropped from the mapping on the way, so a
// quota retry never resurrects them.
func (s *Store) Set(key string, value any, class domain.TTLClass) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("failed to encode cache payload", "key", key, "error", err)
		return false
	}

	s.adapter.Lock()
	defer s.adapter.Unlock()

	now := s.now()
	entries := s.load()
	for k, e := range entries {
		if e.Expired(now) {
			delete(entries, k)
		}
	}
	entries[key] = domain.CacheEntry{
		Data:      raw,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.DurationFor(class)),
	}
	if !s.persist(entries) {
		return false
	}
	metrics.CacheWrites.WithLabelValues(string(class)).Inc()
	return true
}

// PurgeExpired removes every expired entry, persists the reduced mapping
// and returns the removed count.
func (s *Store) PurgeExpired() int {
	s.adapter.Lock()
	defer s.adapter.Unlock()
	return s.EvictExpired()
}

// EvictExpired is PurgeExpired for callers that already hold the layer
// lock. It is wired as the adapter's quota evictor.
func (s *Store) EvictExpired() int {
	now := s.now()
	entries := s.load()

	removed := 0
	for key, entry := range entries {
		if entry.Expired(now) {
			delete(entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.persist(entries)
		metrics.CachePurged.Add(float64(removed))
	}
	return removed
}

// Clear drops the whole mapping.
func (s *Store) Clear() {
	s.adapter.Lock()
	defer s.adapter.Unlock()
	s.adapter.Remove(StorageKey)
}

// Len returns the number of live (unexpired) entries.
func (s *Store) Len() int {
	s.adapter.Lock()
	defer s.adapter.Unlock()

	now := s.now()
	count := 0
	for _, entry := range s.load() {
		if !entry.Expired(now) {
			count++
		}
	}
	return count
}

func (s *Store) load() map[string]domain.CacheEntry {
	entries := make(map[string]domain.CacheEntry)
	s.adapter.Get(StorageKey, &entries)
	return entries
}

func (s *Store) persist(entries map[string]domain.CacheEntry) bool {
	return s.adapter.Set(StorageKey, entries)
}
