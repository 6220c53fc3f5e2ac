package domain

import (
	"encoding/json"
	"time"
)

// TTLClass names a cache retention duration. The concrete durations are
// configured by the cache store; unknown classes fall back to medium.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// CacheEntry is one cached API result. Data is opaque to the cache layer
// and stored by value, so later mutation of the caller's copy cannot leak in.
type CacheEntry struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry must be treated as gone at the given
// instant. An entry is stale from the exact expiry time onward.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
