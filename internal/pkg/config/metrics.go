package config

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConfigMetrics tracks configuration fallbacks for one component (e.g. "delivery_worker").
type ConfigMetrics struct {
	LoadTimestamp  prometheus.Gauge
	FallbacksTotal *prometheus.CounterVec
	FallbackActive prometheus.Gauge

	component string
}

// NewConfigMetrics registers the metrics with the default registry. Call it once per component.
func NewConfigMetrics(component string) *ConfigMetrics {
	return &ConfigMetrics{
		LoadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_config_load_timestamp", component),
			Help: fmt.Sprintf("Unix timestamp of last %s configuration load", component),
		}),
		FallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_config_fallbacks_total", component),
			Help: fmt.Sprintf("Total number of %s settings that fell back to defaults", component),
		}, []string{"field"}),
		FallbackActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_config_fallback_active", component),
			Help: fmt.Sprintf("1 if any %s setting is running on a fallback value", component),
		}),
		component: component,
	}
}

// Track logs and counts a fallback when r applied one, and reports whether it did.
// A nil receiver only logs.
func Track[T any](m *ConfigMetrics, logger *slog.Logger, r LoadResult[T]) bool {
	if !r.FallbackApplied {
		return false
	}
	if logger != nil {
		logger.Warn("configuration fallback applied",
			slog.String("field", r.Key),
			slog.String("warning", r.Warning))
	}
	if m != nil {
		m.FallbacksTotal.WithLabelValues(r.Key).Inc()
	}
	return true
}

// Loaded stamps the load time and the fallback gauge.
func (m *ConfigMetrics) Loaded(anyFallback bool) {
	m.LoadTimestamp.SetToCurrentTime()
	if anyFallback {
		m.FallbackActive.Set(1)
	} else {
		m.FallbackActive.Set(0)
	}
}
