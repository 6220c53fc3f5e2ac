package domain

import (
	"encoding/json"
	"time"
)

// OfflineAction is one unit of deferred user intent, recorded locally when
// the remote call could not be made. Kind and Payload are opaque here and
// interpreted only by the drain processor.
type OfflineAction struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
