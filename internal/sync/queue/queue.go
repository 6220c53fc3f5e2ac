// Package queue is the offline action journal: an append-only FIFO of
// deferred user intent, persisted through the durable adapter and drained
// by a caller-supplied processor once connectivity returns.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/syncgate/internal/core/domain"
	"github.com/vietddude/syncgate/internal/infra/store"
	"github.com/vietddude/syncgate/internal/sync/metrics"
)

const (
	// StorageKey holds the serialized FIFO of pending actions.
	StorageKey = store.Namespace + "queue"
	// SyncKey holds the last successful sync time in unix milliseconds.
	SyncKey = store.Namespace + "last_sync"
)

// Processor replays one queued action against the remote side. Returning
// true removes the action; false or an error leaves it queued.
type Processor func(ctx context.Context, action domain.OfflineAction) (bool, error)

// Queue is the offline action journal. Mutating operations hold the
// persistence-layer lock across their full read-mutate-persist cycle.
type Queue struct {
	adapter *store.Adapter
	log     *slog.Logger
	now     func() time.Time
}

// New creates a queue over the adapter.
func New(adapter *store.Adapter, log *slog.Logger) *Queue {
	return &Queue{adapter: adapter, log: log, now: time.Now}
}

// Enqueue appends an action with a fresh id, persists the full queue and
// returns the id. The payload is treated as an opaque value.
func (q *Queue) Enqueue(kind string, payload []byte) string {
	q.adapter.Lock()
	defer q.adapter.Unlock()

	now := q.now()
	action := domain.OfflineAction{
		ID:         newID(now),
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: now,
	}

	actions := q.load()
	actions = append(actions, action)
	q.persist(actions)

	q.log.Debug("queued offline action", "id", action.ID, "kind", kind, "depth", len(actions))
	return action.ID
}

// List returns a read-only snapshot of pending actions in FIFO order.
func (q *Queue) List() []domain.OfflineAction {
	q.adapter.Lock()
	defer q.adapter.Unlock()
	return q.load()
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.adapter.Lock()
	defer q.adapter.Unlock()
	return len(q.load())
}

// Remove deletes exactly one action by id. It is idempotent: a second
// call with the same id is a no-op returning false.
func (q *Queue) Remove(id string) bool {
	q.adapter.Lock()
	defer q.adapter.Unlock()
	return q.removeLocked(id)
}

// Drain processes pending actions in FIFO order. A failed action is left
// in place and draining continues with the next one; a single bad action
// never blocks the rest. Drain itself never fails — failures show up as
// unchanged actions on the next List. If anything was processed,
// lastSyncAt is advanced.
func (q *Queue) Drain(ctx context.Context, processor Processor) int {
	snapshot := q.List()
	if len(snapshot) == 0 {
		return 0
	}

	processed := 0
	for _, action := range snapshot {
		if ctx.Err() != nil {
			break
		}

		ok, err := processor(ctx, action)
		if err != nil {
			metrics.QueueFailures.Inc()
			q.log.Warn("offline action failed, keeping queued",
				"id", action.ID, "kind", action.Kind, "error", err)
			continue
		}
		if !ok {
			metrics.QueueFailures.Inc()
			q.log.Warn("offline action rejected by processor, keeping queued",
				"id", action.ID, "kind", action.Kind)
			continue
		}

		if q.Remove(action.ID) {
			processed++
			metrics.QueueProcessed.Inc()
		}
	}

	if processed > 0 {
		q.TouchSync()
		q.log.Info("drained offline queue", "processed", processed, "remaining", q.Len())
	}
	return processed
}

// Clear drops all pending actions.
func (q *Queue) Clear() {
	q.adapter.Lock()
	defer q.adapter.Unlock()
	q.adapter.Remove(StorageKey)
	metrics.QueueDepth.Set(0)
}

// LastSync returns the time of the last successful sync, if any.
func (q *Queue) LastSync() (time.Time, bool) {
	q.adapter.Lock()
	defer q.adapter.Unlock()

	var ms int64
	if !q.adapter.Get(SyncKey, &ms) {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// TouchSync records now as the last successful sync time.
func (q *Queue) TouchSync() {
	q.adapter.Lock()
	defer q.adapter.Unlock()
	q.adapter.Set(SyncKey, q.now().UnixMilli())
}

func (q *Queue) removeLocked(id string) bool {
	actions := q.load()
	for i, action := range actions {
		if action.ID == id {
			actions = append(actions[:i], actions[i+1:]...)
			q.persist(actions)
			return true
		}
	}
	return false
}

func (q *Queue) load() []domain.OfflineAction {
	var actions []domain.OfflineAction
	q.adapter.Get(StorageKey, &actions)
	return actions
}

func (q *Queue) persist(actions []domain.OfflineAction) {
	q.adapter.Set(StorageKey, actions)
	metrics.QueueDepth.Set(float64(len(actions)))
}

// newID builds a timestamp-prefixed id so ids sort roughly by enqueue
// time while staying unique.
func newID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}
