package store

import (
	"sort"
	"strings"
	"sync"
)

// MemoryBackend is an in-memory Backend with an optional byte capacity,
// mirroring the overflow behavior of a browser's local storage. It doubles
// as the degraded-mode fallback when a durable backend cannot be opened.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string]string
	maxBytes int
	used     int
	disabled bool
}

// NewMemoryBackend creates a memory backend. maxBytes of 0 means unlimited.
func NewMemoryBackend(maxBytes int) *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string]string),
		maxBytes: maxBytes,
	}
}

// Disable makes every subsequent operation fail with ErrUnavailable,
// simulating a store the environment has withdrawn.
func (b *MemoryBackend) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disabled = true
}

func (b *MemoryBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disabled {
		return "", false, ErrUnavailable
	}
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *MemoryBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disabled {
		return ErrUnavailable
	}

	delta := len(key) + len(value)
	if old, ok := b.data[key]; ok {
		delta = len(value) - len(old)
	}
	if b.maxBytes > 0 && b.used+delta > b.maxBytes {
		return ErrQuotaExceeded
	}

	b.data[key] = value
	b.used += delta
	return nil
}

func (b *MemoryBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disabled {
		return ErrUnavailable
	}
	if old, ok := b.data[key]; ok {
		b.used -= len(key) + len(old)
		delete(b.data, key)
	}
	return nil
}

func (b *MemoryBackend) Keys(prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disabled {
		return nil, ErrUnavailable
	}
	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Used returns the number of bytes currently occupied.
func (b *MemoryBackend) Used() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.used
}
