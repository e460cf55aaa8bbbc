package slo

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"guest-delivery/internal/domain/entity"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		stats entity.QueueStats
		want  Snapshot
	}{
		{
			name:  "empty queue",
			stats: entity.QueueStats{},
			want:  Snapshot{SuccessRatio: 1},
		},
		{
			name:  "healthy",
			stats: entity.QueueStats{entity.QueueDelivered: 199, entity.QueueFailed: 1, entity.QueuePending: 10, entity.QueueRetry: 2},
			want:  Snapshot{SuccessRatio: 0.995, Backlog: 12},
		},
		{
			name:  "too many failures",
			stats: entity.QueueStats{entity.QueueDelivered: 9, entity.QueueFailed: 1},
			want:  Snapshot{SuccessRatio: 0.9, Breached: true},
		},
		{
			name:  "backlog",
			stats: entity.QueueStats{entity.QueuePending: 501},
			want:  Snapshot{SuccessRatio: 1, Backlog: 501, Breached: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.stats)
			assert.InDelta(t, tt.want.SuccessRatio, got.SuccessRatio, 1e-9)
			assert.Equal(t, tt.want.Backlog, got.Backlog)
			assert.Equal(t, tt.want.Breached, got.Breached)
		})
	}
}

func TestUpdate_PublishesGauges(t *testing.T) {
	Update(entity.QueueStats{entity.QueueDelivered: 1, entity.QueueFailed: 1, entity.QueueRetry: 3})

	assert.Equal(t, 0.5, testutil.ToFloat64(SLODeliverySuccess))
	assert.Equal(t, 3.0, testutil.ToFloat64(SLOBacklog))
	assert.Equal(t, 1.0, testutil.ToFloat64(SLOBreached))

	Update(entity.QueueStats{entity.QueueDelivered: 5})
	assert.Equal(t, 0.0, testutil.ToFloat64(SLOBreached))
}
