package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups tracks cache reads by outcome (hit, miss, expired)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncgate_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"result"},
	)

	// CacheWrites tracks cache writes per TTL class
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncgate_cache_writes_total",
			Help: "Total number of cache writes",
		},
		[]string{"class"},
	)

	// CachePurged tracks entries removed by expiry purges
	CachePurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncgate_cache_purged_total",
			Help: "Total number of expired cache entries purged",
		},
	)

	// QuotaRecoveries tracks evict-and-retry cycles triggered by a full store
	QuotaRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncgate_store_quota_recoveries_total",
			Help: "Total number of quota-exceeded eviction retries",
		},
	)

	// StoreFailures tracks writes that failed even after recovery
	StoreFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncgate_store_failures_total",
			Help: "Total number of durable store write failures",
		},
	)

	// QueueDepth tracks the current number of pending offline actions
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncgate_queue_depth",
			Help: "Current number of pending offline actions",
		},
	)

	// QueueProcessed tracks actions successfully replayed by drains
	QueueProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncgate_queue_processed_total",
			Help: "Total number of offline actions successfully processed",
		},
	)

	// QueueFailures tracks actions whose processor failed during a drain
	QueueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncgate_queue_failures_total",
			Help: "Total number of offline action processing failures",
		},
	)

	// RequestAttempts tracks transport attempts by outcome (success, retryable, terminal)
	RequestAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncgate_request_attempts_total",
			Help: "Total number of outbound request attempts",
		},
		[]string{"outcome"},
	)

	// RequestLatency tracks outbound call latency
	RequestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "syncgate_request_latency_seconds",
			Help:    "Outbound request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LimiterQueued tracks acquisitions that had to wait for window capacity
	LimiterQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncgate_limiter_queued_total",
			Help: "Total number of calls delayed by the rate limiter",
		},
	)

	// Online reflects the last observed connectivity signal (1 = online)
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncgate_online",
			Help: "Last observed connectivity signal (1 = online)",
		},
	)
)
