// Package metrics holds the Prometheus series for the delivery engine.
//
// All series are registered on the default registry through promauto and served by the
// worker's /metrics endpoint. Recorders take plain values so call sites stay one line:
//
//	metrics.RecordDeliveryAttempt(entity.ChannelSMS, result.Status)
//	metrics.RecordQueueOutcome(metrics.OutcomeRetry)
package metrics
