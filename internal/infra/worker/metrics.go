package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"guest-delivery/internal/pkg/config"
	"guest-delivery/internal/usecase/queue"
)

// Tick statuses.
const (
	TickSuccess = "success"
	TickFailure = "failure"
	TickSkipped = "skipped"
)

// WorkerMetrics are the process-level metrics of the delivery worker: configuration
// fallbacks plus one series per cron tick. Per-item outcomes are counted by the queue
// package itself.
type WorkerMetrics struct {
	*config.ConfigMetrics

	CronJobRunsTotal            *prometheus.CounterVec
	CronJobDurationSeconds      prometheus.Histogram
	CronJobItemsClaimedTotal    prometheus.Counter
	CronJobLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics registers the worker metrics with the default registry. Call it once.
func NewWorkerMetrics() *WorkerMetrics {
	return newWorkerMetrics(prometheus.DefaultRegisterer)
}

func newWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	factory := promauto.With(reg)
	m := &WorkerMetrics{
		CronJobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_worker_cron_job_runs_total",
			Help: "Queue worker ticks by status (success, failure, skipped)",
		}, []string{"status"}),
		CronJobDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "delivery_worker_cron_job_duration_seconds",
			Help:    "Duration of one queue worker tick",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}),
		CronJobItemsClaimedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "delivery_worker_cron_job_items_claimed_total",
			Help: "Queue rows claimed across all ticks",
		}),
		CronJobLastSuccessTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "delivery_worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful tick",
		}),
	}
	if reg == prometheus.DefaultRegisterer {
		m.ConfigMetrics = config.NewConfigMetrics("delivery_worker")
	}
	return m
}

// ObserveTick records one RunOnce result.
func (m *WorkerMetrics) ObserveTick(report queue.TickReport, d time.Duration, err error) {
	switch {
	case err != nil:
		m.CronJobRunsTotal.WithLabelValues(TickFailure).Inc()
	case report.Skipped:
		m.CronJobRunsTotal.WithLabelValues(TickSkipped).Inc()
		return
	default:
		m.CronJobRunsTotal.WithLabelValues(TickSuccess).Inc()
		m.CronJobLastSuccessTimestamp.SetToCurrentTime()
	}
	m.CronJobDurationSeconds.Observe(d.Seconds())
	m.CronJobItemsClaimedTotal.Add(float64(report.Claimed))
}
