package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/vietddude/syncgate/internal/core/domain"
	"github.com/vietddude/syncgate/internal/infra/store"
)

func newTestQueue() *Queue {
	adapter := store.NewAdapter(store.NewMemoryBackend(0), slog.Default())
	return New(adapter, slog.Default())
}

func payload(s string) []byte {
	raw, _ := json.Marshal(s)
	return raw
}

func TestQueue_EnqueuePreservesOrder(t *testing.T) {
	q := newTestQueue()

	idA := q.Enqueue("SAVE_PROFILE", payload("a"))
	idB := q.Enqueue("SAVE_FILTER", payload("b"))
	idC := q.Enqueue("SAVE_PROFILE", payload("c"))

	if idA == idB || idB == idC {
		t.Error("Expected distinct action ids")
	}

	actions := q.List()
	if len(actions) != 3 {
		t.Fatalf("List returned %d actions, want 3", len(actions))
	}
	if actions[0].ID != idA || actions[1].ID != idB || actions[2].ID != idC {
		t.Error("Expected FIFO order to match enqueue order")
	}
}

func TestQueue_RemoveIsIdempotent(t *testing.T) {
	q := newTestQueue()
	id := q.Enqueue("SAVE_PROFILE", payload("x"))

	if !q.Remove(id) {
		t.Error("First Remove should report true")
	}
	if q.Remove(id) {
		t.Error("Second Remove should be a no-op returning false")
	}
	if q.Len() != 0 {
		t.Errorf("Queue length = %d, want 0", q.Len())
	}
}

func TestQueue_DrainAllSuccess(t *testing.T) {
	q := newTestQueue()
	q.Enqueue("A", payload("1"))
	q.Enqueue("B", payload("2"))
	q.Enqueue("C", payload("3"))

	var seen []string
	processed := q.Drain(context.Background(), func(ctx context.Context, a domain.OfflineAction) (bool, error) {
		seen = append(seen, a.Kind)
		return true, nil
	})

	if processed != 3 {
		t.Errorf("Drain processed %d, want 3", processed)
	}
	if q.Len() != 0 {
		t.Errorf("Queue length = %d, want 0", q.Len())
	}
	if len(seen) != 3 || seen[0] != "A" || seen[1] != "B" || seen[2] != "C" {
		t.Errorf("Processing order = %v, want [A B C]", seen)
	}

	at, ok := q.LastSync()
	if !ok {
		t.Fatal("Expected lastSync to be set after a successful drain")
	}
	if time.Since(at) > time.Second {
		t.Errorf("lastSync too old: %v", at)
	}
}

func TestQueue_DrainLeavesFailedAction(t *testing.T) {
	q := newTestQueue()
	q.Enqueue("A", payload("1"))
	idB := q.Enqueue("B", payload("2"))
	q.Enqueue("C", payload("3"))

	processed := q.Drain(context.Background(), func(ctx context.Context, a domain.OfflineAction) (bool, error) {
		if a.ID == idB {
			return false, errors.New("remote rejected")
		}
		return true, nil
	})

	if processed != 2 {
		t.Errorf("Drain processed %d, want 2", processed)
	}
	remaining := q.List()
	if len(remaining) != 1 || remaining[0].ID != idB {
		t.Errorf("Expected exactly the failed action to remain, got %v", remaining)
	}
}

func TestQueue_DrainWithoutSuccessLeavesSyncUnset(t *testing.T) {
	q := newTestQueue()
	q.Enqueue("A", payload("1"))

	processed := q.Drain(context.Background(), func(ctx context.Context, a domain.OfflineAction) (bool, error) {
		return false, nil
	})

	if processed != 0 {
		t.Errorf("Drain processed %d, want 0", processed)
	}
	if _, ok := q.LastSync(); ok {
		t.Error("lastSync must stay absent when nothing was processed")
	}
}

func TestQueue_DrainEmptyQueue(t *testing.T) {
	q := newTestQueue()

	processed := q.Drain(context.Background(), func(ctx context.Context, a domain.OfflineAction) (bool, error) {
		t.Error("Processor must not run on an empty queue")
		return true, nil
	})
	if processed != 0 {
		t.Errorf("Drain processed %d, want 0", processed)
	}
}

func TestQueue_DrainStopsOnCancelledContext(t *testing.T) {
	q := newTestQueue()
	q.Enqueue("A", payload("1"))
	q.Enqueue("B", payload("2"))

	ctx, cancel := context.WithCancel(context.Background())
	processed := q.Drain(ctx, func(ctx context.Context, a domain.OfflineAction) (bool, error) {
		cancel()
		return true, nil
	})

	if processed != 1 {
		t.Errorf("Drain processed %d, want 1 before cancellation took effect", processed)
	}
	if q.Len() != 1 {
		t.Errorf("Queue length = %d, want 1", q.Len())
	}
}

func TestQueue_TouchSync(t *testing.T) {
	q := newTestQueue()

	if _, ok := q.LastSync(); ok {
		t.Fatal("lastSync must be absent initially")
	}
	q.TouchSync()
	if _, ok := q.LastSync(); !ok {
		t.Error("Expected lastSync after TouchSync")
	}
}

func TestQueue_Clear(t *testing.T) {
	q := newTestQueue()
	q.Enqueue("A", payload("1"))
	q.Clear()

	if q.Len() != 0 {
		t.Errorf("Queue length = %d, want 0 after Clear", q.Len())
	}
}

func TestQueue_PayloadOpaque(t *testing.T) {
	q := newTestQueue()
	raw := json.RawMessage(`{"name":"Schule A","nested":{"x":1}}`)
	q.Enqueue("SAVE_PROFILE", raw)

	actions := q.List()
	if len(actions) != 1 {
		t.Fatalf("List returned %d actions, want 1", len(actions))
	}
	var got struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(actions[0].Payload, &got); err != nil {
		t.Fatalf("Payload not preserved: %v", err)
	}
	if got.Name != "Schule A" {
		t.Errorf("Payload name = %q, want %q", got.Name, "Schule A")
	}
}
