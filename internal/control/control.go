// Package control is the integration layer: it owns one instance of every
// component, routes application calls through the retrying transport,
// diverts writes into the offline queue while disconnected and replays
// them when connectivity returns.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/syncgate/internal/core/config"
	"github.com/vietddude/syncgate/internal/core/domain"
	"github.com/vietddude/syncgate/internal/infra/store"
	"github.com/vietddude/syncgate/internal/infra/transport"
	"github.com/vietddude/syncgate/internal/sync/cache"
	"github.com/vietddude/syncgate/internal/sync/connectivity"
	"github.com/vietddude/syncgate/internal/sync/queue"
	"github.com/vietddude/syncgate/migrations"
)

// ErrQueuedOffline reports that a request could not reach the remote side
// and, for submits, that the action was journaled for replay instead.
var ErrQueuedOffline = errors.New("control: offline, action queued for replay")

// Config holds the application configuration.
type Config struct {
	Port         int
	Remote       config.RemoteConfig
	Budget       transport.Config
	Retry        transport.RetryConfig
	Storage      config.StorageConfig
	Cache        cache.Config
	Connectivity config.ConnectivityConfig
}

// Gateway wires the resilience layer together and is the only entry point
// the application talks to.
type Gateway struct {
	cfg       Config
	adapter   *store.Adapter
	cache     *cache.Store
	queue     *queue.Queue
	limiter   *transport.Limiter
	client    *transport.Client
	monitor   *connectivity.Monitor
	server    *Server
	processor queue.Processor
	log       *slog.Logger

	closers []func() error
	unsub   func()
	cancel  context.CancelFunc
}

// NewGateway creates a gateway with all dependencies initialized. An
// unusable durable backend degrades to in-memory storage instead of
// failing; user intent then survives only the process lifetime.
func NewGateway(cfg Config, log *slog.Logger) (*Gateway, error) {
	g := &Gateway{cfg: cfg, log: log}

	// 1. Durable storage
	backend, closers, err := openBackend(cfg.Storage, log)
	if err != nil {
		log.Warn("durable backend unusable, degrading to in-memory storage", "error", err)
		backend = store.NewMemoryBackend(0)
		closers = nil
	}
	g.closers = closers
	g.adapter = store.NewAdapter(backend, log)
	if !g.adapter.IsAvailable() {
		log.Warn("durable store failed availability probe, degrading to in-memory storage")
		g.adapter = store.NewAdapter(store.NewMemoryBackend(0), log)
	}

	// 2. Persistence components; the cache's purge backs quota recovery
	g.cache = cache.New(g.adapter, cfg.Cache, log)
	g.adapter.SetEvictor(g.cache.EvictExpired)
	g.queue = queue.New(g.adapter, log)

	// 3. Outbound path
	g.limiter = transport.NewLimiter(cfg.Budget)
	g.client = transport.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, g.limiter, cfg.Retry, log)
	g.processor = DefaultProcessor(g.client)

	// 4. Connectivity
	probeURL := cfg.Connectivity.ProbeURL
	if probeURL == "" {
		probeURL = cfg.Remote.BaseURL
	}
	prober := connectivity.NewHTTPProber(probeURL, cfg.Remote.Timeout)
	g.monitor = connectivity.NewMonitor(prober, cfg.Connectivity.ProbeInterval, log)

	g.server = NewServer(g, cfg.Port)
	return g, nil
}

// SetProcessor replaces the action replay processor. Must be called
// before Start.
func (g *Gateway) SetProcessor(p queue.Processor) {
	g.processor = p
}

// Monitor exposes the connectivity monitor for environments that feed
// native online/offline signals.
func (g *Gateway) Monitor() *connectivity.Monitor {
	return g.monitor
}

// Client exposes the retrying transport for custom processors.
func (g *Gateway) Client() *transport.Client {
	return g.client
}

// Queue exposes the offline queue for inspection.
func (g *Gateway) Queue() *queue.Queue {
	return g.queue
}

// Cache exposes the cache store.
func (g *Gateway) Cache() *cache.Store {
	return g.cache
}

// Start begins connectivity polling, hooks queue replay to the
// offline-to-online transition and serves the status endpoints.
func (g *Gateway) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)

	g.unsub = g.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if n := g.queue.Drain(ctx, g.processor); n > 0 {
				g.log.Info("replayed offline actions after reconnect", "count", n)
			}
		}()
	})

	g.monitor.Start(ctx)

	go func() {
		if err := g.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error("status server failed", "error", err)
		}
	}()
}

// Stop shuts the gateway down and closes the durable backend.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}
	if g.unsub != nil {
		g.unsub()
	}

	var firstErr error
	if err := g.server.Stop(ctx); err != nil {
		firstErr = err
	}
	for _, closeFn := range g.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Fetch sends a read request through the retrying transport. With a
// non-empty TTL class the response cache is consulted first and populated
// on success, keyed by the request fingerprint. While offline, only
// cached data is served.
func (g *Gateway) Fetch(ctx context.Context, req *transport.Request, ttl domain.TTLClass) (*transport.Response, error) {
	key := req.Fingerprint()

	if ttl != "" {
		var cached transport.Response
		if g.cache.Get(key, &cached) {
			return &cached, nil
		}
	}

	if !g.monitor.IsOnline() {
		return nil, fmt.Errorf("%w: %s %s not cached", ErrQueuedOffline, req.Method, req.Path)
	}

	resp, err := g.client.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if ttl != "" {
		g.cache.Set(key, resp, ttl)
	}
	return resp, nil
}

// Submit records one unit of user intent. Online, it is replayed through
// the processor immediately; offline, or when the immediate replay fails,
// it is journaled and the action id is returned with ErrQueuedOffline.
func (g *Gateway) Submit(ctx context.Context, kind string, payload json.RawMessage) (string, error) {
	if g.monitor.IsOnline() {
		action := domain.OfflineAction{Kind: kind, Payload: payload, EnqueuedAt: time.Now()}
		ok, err := g.processor(ctx, action)
		if ok && err == nil {
			return "", nil
		}
		if err != nil {
			g.log.Warn("immediate submit failed, journaling action", "kind", kind, "error", err)
		}
	}

	id := g.queue.Enqueue(kind, payload)
	return id, fmt.Errorf("%w (action %s)", ErrQueuedOffline, id)
}

// SyncNow drains the queue once and touches the last-sync marker even
// when nothing was pending, so a manual sync is always visible.
func (g *Gateway) SyncNow(ctx context.Context) int {
	n := g.queue.Drain(ctx, g.processor)
	g.queue.TouchSync()
	return n
}

// Status is the externally visible state of the resilience layer.
type Status struct {
	domain.SyncState
	StorageAvailable bool `json:"storage_available"`
	QueueDepth       int  `json:"queue_depth"`
	CacheEntries     int  `json:"cache_entries"`
}

// Status reports the layer's current state.
func (g *Gateway) Status() Status {
	st := Status{
		SyncState:        domain.SyncState{IsOnline: g.monitor.IsOnline()},
		StorageAvailable: g.adapter.IsAvailable(),
		QueueDepth:       g.queue.Len(),
		CacheEntries:     g.cache.Len(),
	}
	if at, ok := g.queue.LastSync(); ok {
		st.LastSyncAt = &at
	}
	return st
}

// Export serializes every durable key under this layer's namespace into
// one JSON document, the only documented interchange format.
func (g *Gateway) Export() ([]byte, error) {
	g.adapter.Lock()
	defer g.adapter.Unlock()

	doc := make(map[string]string)
	for _, key := range g.adapter.Keys(store.Namespace) {
		if raw, ok := g.adapter.RawGet(key); ok {
			doc[key] = raw
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import restores a document produced by Export, key by key, verbatim.
func (g *Gateway) Import(data []byte) error {
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse backup document: %w", err)
	}

	g.adapter.Lock()
	defer g.adapter.Unlock()

	for key, value := range doc {
		if !strings.HasPrefix(key, store.Namespace) {
			continue
		}
		if !g.adapter.RawSet(key, value) {
			return fmt.Errorf("failed to restore key %s", key)
		}
	}
	return nil
}

// Wipe removes every durable key under this layer's namespace. The
// last-sync marker is gone afterward, as after first install.
func (g *Gateway) Wipe() {
	g.adapter.Lock()
	defer g.adapter.Unlock()

	for _, key := range g.adapter.Keys(store.Namespace) {
		g.adapter.Remove(key)
	}
}

// DefaultProcessor replays an action as a POST of its payload to a path
// derived from the action kind. Integrations with richer routing supply
// their own processor via SetProcessor.
func DefaultProcessor(client *transport.Client) queue.Processor {
	return func(ctx context.Context, action domain.OfflineAction) (bool, error) {
		req := &transport.Request{
			Method: http.MethodPost,
			Path:   "/" + strings.ToLower(strings.ReplaceAll(action.Kind, "_", "-")),
			Body:   action.Payload,
		}
		if _, err := client.Send(ctx, req); err != nil {
			return false, err
		}
		return true, nil
	}
}

// openBackend builds the configured durable backend. Postgres schema
// migrations run here, before the adapter touches the table.
func openBackend(cfg config.StorageConfig, log *slog.Logger) (store.Backend, []func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryBackend(cfg.CapacityBytes), nil, nil

	case "badger":
		b, err := store.NewBadgerBackend(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("opened badger store", "path", cfg.Path)
		return b, []func() error{b.Close}, nil

	case "redis":
		b, err := store.NewRedisBackend(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to redis store")
		return b, []func() error{b.Close}, nil

	case "postgres":
		b, err := store.NewPostgresBackend(context.Background(), cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		goose.SetBaseFS(migrations.Embedded)
		if err := goose.SetDialect("postgres"); err != nil {
			_ = b.Close()
			return nil, nil, fmt.Errorf("failed to set goose dialect: %w", err)
		}
		if err := goose.Up(b.DB(), "."); err != nil {
			_ = b.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("connected to postgres store")
		return b, []func() error{b.Close}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
