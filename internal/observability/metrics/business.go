package metrics

import (
	"time"

	"guest-delivery/internal/domain/entity"
)

// Resolution reasons.
const (
	ReasonPreferred = "preferred"
	ReasonFallback  = "fallback"
	ReasonDefault   = "default"
)

// Queue outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeLostClaim = "lost_claim"
)

// RecordDeliveryAttempt counts one provider attempt.
func RecordDeliveryAttempt(ch entity.Channel, status string) {
	DeliveryAttemptsTotal.WithLabelValues(string(ch), status).Inc()
}

// RecordCircuitState publishes a breaker transition. state is the numeric gobreaker.State.
func RecordCircuitState(circuit string, state int, to string) {
	ProviderCircuitState.WithLabelValues(circuit).Set(float64(state))
	ProviderCircuitTransitionsTotal.WithLabelValues(circuit, to).Inc()
}

// RecordDeliveryDuration observes one provider attempt.
func RecordDeliveryDuration(ch entity.Channel, d time.Duration) {
	DeliveryDuration.WithLabelValues(string(ch)).Observe(d.Seconds())
}

// RecordFanout observes the number of numbers contacted by one fan-out.
func RecordFanout(numbers int) {
	DeliveryFanoutNumbers.Observe(float64(numbers))
}

// RecordResolution counts one resolver decision.
func RecordResolution(ch entity.Channel, reason string) {
	DeliveryResolvedTotal.WithLabelValues(string(ch), reason).Inc()
}

// RecordNoticeMirrorFailure counts a swallowed notice-store failure.
func RecordNoticeMirrorFailure() {
	DeliveryNoticeMirrorFailuresTotal.Inc()
}

// RecordQueueOutcome counts one processed queue item.
func RecordQueueOutcome(outcome string) {
	QueueItemsProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordClaimLag observes the wait between due time and claim. Negative lags are clamped.
func RecordClaimLag(d time.Duration) {
	if d < 0 {
		d = 0
	}
	QueueClaimLagSeconds.Observe(d.Seconds())
}

// RecordStaleRequeued adds n recovered rows.
func RecordStaleRequeued(n int64) {
	if n > 0 {
		QueueStaleRequeuedTotal.Add(float64(n))
	}
}

// RecordPurged adds n purged rows.
func RecordPurged(n int64) {
	if n > 0 {
		QueuePurgedTotal.Add(float64(n))
	}
}

// UpdateQueueDepth publishes stats, zeroing statuses that have no rows.
func UpdateQueueDepth(stats entity.QueueStats) {
	for _, st := range entity.AllQueueStatuses {
		QueueDepth.WithLabelValues(string(st)).Set(float64(stats[st]))
	}
}

// RecordLedgerEntry counts one ledger write.
func RecordLedgerEntry(status entity.LedgerStatus, method entity.LedgerMethod) {
	LedgerEntriesTotal.WithLabelValues(string(status), string(method)).Inc()
}

// RecordLedgerSkipped counts one idempotent skip.
func RecordLedgerSkipped() {
	LedgerSkippedTotal.Inc()
}

// RecordDBQuery observes one repository call.
func RecordDBQuery(operation string, d time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// UpdateDBConnectionStats publishes pool usage.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
