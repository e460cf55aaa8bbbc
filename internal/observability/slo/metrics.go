// Package slo publishes delivery service-level gauges computed from queue counts.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"guest-delivery/internal/domain/entity"
)

// Targets for queued delivery.
const (
	// DeliverySuccessSLO is the minimum share of finished rows that end DELIVERED.
	DeliverySuccessSLO = 0.99

	// BacklogSLO is the maximum number of claimable rows tolerated at a tick.
	BacklogSLO = 500
)

var (
	// SLODeliverySuccess is DELIVERED / (DELIVERED + FAILED).
	SLODeliverySuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_delivery_success_ratio",
			Help: "Share of finished queue rows that were delivered (0-1), target: 0.99",
		},
	)

	// SLOBacklog is PENDING + RETRY.
	SLOBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_queue_backlog",
			Help: "Claimable queue rows (PENDING + RETRY), target: <= 500",
		},
	)

	// SLOBreached is 1 while any target is missed.
	SLOBreached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_breached",
			Help: "1 when a delivery SLO target is currently missed",
		},
	)
)

// Snapshot is the SLO view of one set of queue counts.
type Snapshot struct {
	SuccessRatio float64
	Backlog      int64
	Breached     bool
}

// Evaluate computes the snapshot for stats. With no finished rows the ratio is 1.
func Evaluate(stats entity.QueueStats) Snapshot {
	finished := stats[entity.QueueDelivered] + stats[entity.QueueFailed]
	ratio := 1.0
	if finished > 0 {
		ratio = float64(stats[entity.QueueDelivered]) / float64(finished)
	}
	backlog := stats[entity.QueuePending] + stats[entity.QueueRetry]
	return Snapshot{
		SuccessRatio: ratio,
		Backlog:      backlog,
		Breached:     ratio < DeliverySuccessSLO || backlog > BacklogSLO,
	}
}

// Update evaluates stats and publishes the gauges.
func Update(stats entity.QueueStats) Snapshot {
	s := Evaluate(stats)
	SLODeliverySuccess.Set(s.SuccessRatio)
	SLOBacklog.Set(float64(s.Backlog))
	if s.Breached {
		SLOBreached.Set(1)
	} else {
		SLOBreached.Set(0)
	}
	return s
}
