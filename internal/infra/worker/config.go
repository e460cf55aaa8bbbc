package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"guest-delivery/internal/pkg/config"
	"guest-delivery/internal/usecase/queue"
)

// WorkerConfig configures the delivery worker process.
//
// Environment variables (all optional, invalid values fall back to the default):
//
//	QUEUE_CRON_SCHEDULE  cron expression or descriptor   "@every 30s"
//	WORKER_TIMEZONE      IANA zone for the schedule      "UTC"
//	QUEUE_BATCH_SIZE     rows claimed per tick, 1-500    20
//	QUEUE_BASE_BACKOFF   delay before the first retry    30s
//	QUEUE_MAX_BACKOFF    retry delay cap                 1h
//	QUEUE_STALE_AFTER    PROCESSING lease                15m
//	QUEUE_RETENTION      DELIVERED row retention         720h
//	QUEUE_TICK_TIMEOUT   deadline of one tick            5m
//	WORKER_HEALTH_PORT   health server port              9091
//	METRICS_PORT         metrics server port             9090
type WorkerConfig struct {
	CronSchedule string
	Timezone     string
	BatchSize    int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	StaleAfter   time.Duration
	Retention    time.Duration
	TickTimeout  time.Duration
	HealthPort   int
	MetricsPort  int
}

// DefaultConfig returns the settings used when no environment overrides are present.
func DefaultConfig() WorkerConfig {
	q := queue.DefaultWorkerConfig()
	return WorkerConfig{
		CronSchedule: "@every 30s",
		Timezone:     "UTC",
		BatchSize:    q.BatchSize,
		BaseBackoff:  q.BaseBackoff,
		MaxBackoff:   q.MaxBackoff,
		StaleAfter:   q.StaleAfter,
		Retention:    q.Retention,
		TickTimeout:  5 * time.Minute,
		HealthPort:   9091,
		MetricsPort:  9090,
	}
}

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.IntRange(1, 500)(c.BatchSize); err != nil {
		errs = append(errs, fmt.Errorf("batch size: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.BaseBackoff); err != nil {
		errs = append(errs, fmt.Errorf("base backoff: %w", err))
	}
	if c.MaxBackoff < c.BaseBackoff {
		errs = append(errs, fmt.Errorf("max backoff %v is below base backoff %v", c.MaxBackoff, c.BaseBackoff))
	}
	if err := config.ValidatePositiveDuration(c.StaleAfter); err != nil {
		errs = append(errs, fmt.Errorf("stale after: %w", err))
	}
	if c.Retention < 0 {
		errs = append(errs, fmt.Errorf("retention must not be negative, got %v", c.Retention))
	}
	if err := config.ValidatePositiveDuration(c.TickTimeout); err != nil {
		errs = append(errs, fmt.Errorf("tick timeout: %w", err))
	}
	if err := config.IntRange(1024, 65535)(c.HealthPort); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.IntRange(1024, 65535)(c.MetricsPort); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}
	if c.HealthPort == c.MetricsPort {
		errs = append(errs, fmt.Errorf("health and metrics ports must differ, both are %d", c.HealthPort))
	}
	return errors.Join(errs...)
}

// QueueConfig converts the process settings into the queue worker's settings.
func (c *WorkerConfig) QueueConfig() queue.WorkerConfig {
	q := queue.DefaultWorkerConfig()
	q.BatchSize = c.BatchSize
	q.BaseBackoff = c.BaseBackoff
	q.MaxBackoff = c.MaxBackoff
	q.StaleAfter = c.StaleAfter
	q.Retention = c.Retention
	return q
}

// LoadConfigFromEnv reads WorkerConfig from the environment. It never fails: every invalid
// value is logged, counted on metrics, and replaced by its default. metrics may be nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	cfg := DefaultConfig()
	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}

	fallback := false
	track := func(applied bool) {
		fallback = fallback || applied
	}

	schedule := config.LoadString("QUEUE_CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	track(config.Track(cm, logger, schedule))
	cfg.CronSchedule = schedule.Value

	tz := config.LoadString("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	track(config.Track(cm, logger, tz))
	cfg.Timezone = tz.Value

	batch := config.LoadInt("QUEUE_BATCH_SIZE", cfg.BatchSize, config.IntRange(1, 500))
	track(config.Track(cm, logger, batch))
	cfg.BatchSize = batch.Value

	base := config.LoadDuration("QUEUE_BASE_BACKOFF", cfg.BaseBackoff, config.DurationRange(time.Second, time.Hour))
	track(config.Track(cm, logger, base))
	cfg.BaseBackoff = base.Value

	maxBackoff := config.LoadDuration("QUEUE_MAX_BACKOFF", cfg.MaxBackoff, config.DurationRange(time.Second, 24*time.Hour))
	track(config.Track(cm, logger, maxBackoff))
	cfg.MaxBackoff = maxBackoff.Value

	stale := config.LoadDuration("QUEUE_STALE_AFTER", cfg.StaleAfter, config.DurationRange(time.Minute, 24*time.Hour))
	track(config.Track(cm, logger, stale))
	cfg.StaleAfter = stale.Value

	retention := config.LoadDuration("QUEUE_RETENTION", cfg.Retention, config.DurationRange(0, 365*24*time.Hour))
	track(config.Track(cm, logger, retention))
	cfg.Retention = retention.Value

	tickTimeout := config.LoadDuration("QUEUE_TICK_TIMEOUT", cfg.TickTimeout, config.DurationRange(time.Second, time.Hour))
	track(config.Track(cm, logger, tickTimeout))
	cfg.TickTimeout = tickTimeout.Value

	health := config.LoadInt("WORKER_HEALTH_PORT", cfg.HealthPort, config.IntRange(1024, 65535))
	track(config.Track(cm, logger, health))
	cfg.HealthPort = health.Value

	metricsPort := config.LoadInt("METRICS_PORT", cfg.MetricsPort, config.IntRange(1024, 65535))
	track(config.Track(cm, logger, metricsPort))
	cfg.MetricsPort = metricsPort.Value

	// Cross-field rules are checked after every field is individually valid.
	if cfg.MaxBackoff < cfg.BaseBackoff {
		logger.Warn("configuration fallback applied",
			slog.String("field", "QUEUE_MAX_BACKOFF"),
			slog.String("warning", fmt.Sprintf("max backoff %v below base backoff %v, using base", cfg.MaxBackoff, cfg.BaseBackoff)))
		if cm != nil {
			cm.FallbacksTotal.WithLabelValues("QUEUE_MAX_BACKOFF").Inc()
		}
		cfg.MaxBackoff = cfg.BaseBackoff
		fallback = true
	}
	if cfg.HealthPort == cfg.MetricsPort {
		def := DefaultConfig()
		logger.Warn("configuration fallback applied",
			slog.String("field", "WORKER_HEALTH_PORT"),
			slog.String("warning", "health and metrics ports collide, using defaults"))
		if cm != nil {
			cm.FallbacksTotal.WithLabelValues("WORKER_HEALTH_PORT").Inc()
		}
		cfg.HealthPort, cfg.MetricsPort = def.HealthPort, def.MetricsPort
		fallback = true
	}

	if cm != nil {
		cm.Loaded(fallback)
	}
	return &cfg
}
