package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery metrics cover resolution, provider attempts and fan-out.
var (
	// DeliveryAttemptsTotal counts provider attempts by channel and result status
	// (SENT, FAILED, <CHANNEL>_RECORDED).
	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Total number of provider delivery attempts",
		},
		[]string{"channel", "status"},
	)

	// DeliveryDuration measures one provider attempt.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_seconds",
			Help:    "Provider delivery attempt duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// DeliveryFanoutNumbers observes how many numbers a phone-addressed send reached.
	DeliveryFanoutNumbers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_fanout_numbers",
			Help:    "Number of phone numbers contacted per fanned-out delivery",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	// DeliveryResolvedTotal counts resolver decisions.
	// reason: preferred|fallback|default
	DeliveryResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_resolved_total",
			Help: "Total number of channel resolutions by chosen channel and reason",
		},
		[]string{"channel", "reason"},
	)

	// ProviderCircuitState is 0 closed, 1 half-open, 2 open, matching gobreaker.State.
	ProviderCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_provider_circuit_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"circuit"},
	)

	// ProviderCircuitTransitionsTotal counts breaker state changes by target state.
	ProviderCircuitTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_provider_circuit_transitions_total",
			Help: "Total number of circuit breaker state changes",
		},
		[]string{"circuit", "to"},
	)

	// DeliveryNoticeMirrorFailuresTotal counts swallowed notice-store failures.
	DeliveryNoticeMirrorFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_notice_mirror_failures_total",
			Help: "Total number of failed writes of delivery outcomes to the notice store",
		},
	)
)

// Queue metrics cover the worker cycle.
var (
	// QueueItemsProcessedTotal counts worker outcomes.
	// outcome: delivered|retry|failed|lost_claim
	QueueItemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_items_processed_total",
			Help: "Total number of queue items processed by outcome",
		},
		[]string{"outcome"},
	)

	// QueueClaimLagSeconds measures how long a claimed item waited past its due time.
	QueueClaimLagSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_claim_lag_seconds",
			Help:    "Delay between an item becoming due and being claimed",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		},
	)

	// QueueStaleRequeuedTotal counts PROCESSING rows recovered by the lease sweep.
	QueueStaleRequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_stale_requeued_total",
			Help: "Total number of stale PROCESSING rows requeued",
		},
	)

	// QueuePurgedTotal counts delivered rows removed by retention.
	QueuePurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_purged_total",
			Help: "Total number of delivered queue rows purged",
		},
	)

	// QueueDepth reports rows per status as of the last worker tick.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Queue rows per status",
		},
		[]string{"status"},
	)
)

// Ledger metrics cover invitation bookkeeping.
var (
	// LedgerEntriesTotal counts ledger writes by resulting status and method.
	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Total number of invitation ledger entries written",
		},
		[]string{"status", "method"},
	)

	// LedgerSkippedTotal counts recipients skipped because an entry already exists.
	LedgerSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_skipped_total",
			Help: "Total number of recipients skipped by invitation idempotency",
		},
	)
)

// Database metrics.
var (
	// DBQueryDuration measures repository calls by operation.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks in-use connections.
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle connections.
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
