package domain

import "time"

// SyncState mirrors the last observed connectivity signal and the time of
// the last successful replay. LastSyncAt is nil until at least one queued
// action has been processed or a manual sync touched it.
type SyncState struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	IsOnline   bool       `json:"is_online"`
}
