// Package tracing wraps OpenTelemetry for the delivery engine.
//
// Spans are opened around synchronous sends, dispatch fan-out and each queue item a worker
// processes. The tracer is looked up from the global provider on every call, so installing a
// provider at startup (or in a test) takes effect immediately.
package tracing
