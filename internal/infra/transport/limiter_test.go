package transport

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiter_ImmediateWithinCapacity(t *testing.T) {
	l := NewLimiter(Config{Limit: 3, Interval: time.Second})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Calls within capacity should dispatch immediately, took %v", elapsed)
	}
}

func TestLimiter_DelaysBeyondCapacity(t *testing.T) {
	interval := 200 * time.Millisecond
	l := NewLimiter(Config{Limit: 2, Interval: interval})

	start := time.Now()
	_ = l.Acquire(context.Background())
	_ = l.Acquire(context.Background())

	// Third call must wait for the window to replenish
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < interval {
		t.Errorf("Third call dispatched after %v, want at least %v", elapsed, interval)
	}
}

func TestLimiter_ReleasesInArrivalOrder(t *testing.T) {
	l := NewLimiter(Config{Limit: 1, Interval: 100 * time.Millisecond})
	_ = l.Acquire(context.Background()) // exhaust the window

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire %d failed: %v", n, err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}(i)
		// Stagger starts so arrival order is deterministic
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("Release order = %v, want [1 2 3]", order)
	}
}

func TestLimiter_ContextCancelAbandonsWaiter(t *testing.T) {
	l := NewLimiter(Config{Limit: 1, Interval: time.Minute})
	_ = l.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	if err == nil {
		t.Fatal("Expected Acquire to fail when the context expires first")
	}
	if l.QueueDepth() != 0 && l.QueueDepth() != 1 {
		t.Errorf("Unexpected queue depth %d", l.QueueDepth())
	}
}

func TestLimiter_DefaultsApplied(t *testing.T) {
	l := NewLimiter(Config{})
	if l.limit != DefaultConfig.Limit || l.interval != DefaultConfig.Interval {
		t.Errorf("Defaults not applied: limit=%d interval=%v", l.limit, l.interval)
	}
}

func TestLimiter_Do(t *testing.T) {
	l := NewLimiter(Config{Limit: 5, Interval: time.Second})

	ran := false
	err := l.Do(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Errorf("Do = %v (ran=%v), want nil and the function executed", err, ran)
	}
}
