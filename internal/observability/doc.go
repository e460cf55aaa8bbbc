// Package observability groups the engine's logging, metrics, SLO gauges and tracing.
//
// Subpackages:
//   - logging: slog helpers, context propagation, credential masking
//   - metrics: Prometheus counters for delivery attempts, queue outcomes and ledger writes
//   - slo: delivery SLO gauges derived from queue counts
//   - tracing: OpenTelemetry spans and the operational HTTP middleware
package observability
