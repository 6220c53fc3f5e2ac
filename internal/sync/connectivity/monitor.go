// Package connectivity tracks whether the remote side is reachable and
// fans transitions out to subscribers. The monitor itself has no idea
// what subscribers do with the signal; the control layer uses it to
// trigger offline-queue drains.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/syncgate/internal/sync/metrics"
)

// Prober answers a single reachability check.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber probes with a HEAD request. Any response at all counts as
// online; only a transport-level failure counts as offline.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober against the given URL.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

type subscriber struct {
	id int
	fn func(online bool)
}

// Monitor holds the last observed connectivity signal and notifies
// subscribers on every transition, each exactly once, in subscription
// order.
type Monitor struct {
	prober   Prober
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	online bool
	subs   []subscriber
	nextID int
}

// NewMonitor creates a monitor. It starts optimistic: online until a
// signal says otherwise.
func NewMonitor(prober Prober, interval time.Duration, log *slog.Logger) *Monitor {
	metrics.Online.Set(1)
	return &Monitor{
		prober:   prober,
		interval: interval,
		log:      log,
		online:   true,
	}
}

// IsOnline reflects the last known connectivity signal. It is not
// updated faster than the probe interval or the feeding environment
// signals.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline consumes an environment signal. Subscribers are notified only
// on an actual transition, outside the lock.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if online {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
	m.log.Info("connectivity changed", "online", online)

	for _, s := range subs {
		s.fn(online)
	}
}

// Subscribe registers a transition callback and returns its disposer.
// Subscribers are independent; unsubscribing one never affects another.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Start polls the prober until ctx is done, feeding results into
// SetOnline. Environments with native online/offline events can skip
// Start and call SetOnline directly.
func (m *Monitor) Start(ctx context.Context) {
	if m.prober == nil || m.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SetOnline(m.prober.Probe(ctx))
			}
		}
	}()
}
