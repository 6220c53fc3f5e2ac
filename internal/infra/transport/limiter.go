// Package transport handles outbound calls to the remote API: a rolling-
// window rate limiter with FIFO admission delay and a retrying HTTP client
// that treats rate-limit responses as transient.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/syncgate/internal/sync/metrics"
)

// Config holds the negotiated request budget.
type Config struct {
	Limit    int           `yaml:"limit"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig reflects a conservative remote-side budget.
var DefaultConfig = Config{
	Limit:    30,
	Interval: time.Minute,
}

type waiter struct {
	ready     chan struct{}
	abandoned bool
}

// Limiter admits at most Limit dispatches across any rolling window of
// Interval. Excess acquisitions queue without a depth cap and are released
// strictly in arrival order as the window replenishes.
type Limiter struct {
	limit    int
	interval time.Duration

	mu      sync.Mutex
	stamps  []time.Time // dispatch times within the current window
	waiters []*waiter
	pending bool // replenish timer scheduled
}

// NewLimiter creates a limiter for the given budget. Zero or negative
// fields fall back to the defaults.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig.Limit
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig.Interval
	}
	return &Limiter{limit: cfg.Limit, interval: cfg.Interval}
}

// Acquire blocks until a window slot is available or ctx is done. A call
// that arrives with capacity free and no queued waiters dispatches
// immediately; otherwise it joins the FIFO queue.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	l.prune(now)

	if len(l.waiters) == 0 && len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.scheduleReplenish(now)
	l.mu.Unlock()

	metrics.LimiterQueued.Inc()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		w.abandoned = true
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Do acquires a slot and then runs fn.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// prune drops dispatch stamps that have left the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.interval)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// scheduleReplenish arms a timer for the instant the oldest stamp leaves
// the window. Caller holds mu.
func (l *Limiter) scheduleReplenish(now time.Time) {
	if l.pending || len(l.stamps) == 0 {
		return
	}
	l.pending = true
	delay := l.stamps[0].Add(l.interval).Sub(now)
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	time.AfterFunc(delay, l.replenish)
}

// replenish releases queued waiters head-first into freed slots.
func (l *Limiter) replenish() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = false
	now := time.Now()
	l.prune(now)

	for len(l.waiters) > 0 && len(l.stamps) < l.limit {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		if w.abandoned {
			continue
		}
		l.stamps = append(l.stamps, now)
		close(w.ready)
	}

	if len(l.waiters) > 0 {
		l.scheduleReplenish(now)
	}
}

// QueueDepth returns the number of acquisitions currently waiting.
func (l *Limiter) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
