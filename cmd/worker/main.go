package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"guest-delivery/internal/app"
	"guest-delivery/internal/infra/db"
	workerPkg "guest-delivery/internal/infra/worker"
	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/observability/metrics"
	pkgconfig "guest-delivery/internal/pkg/config"
	"guest-delivery/internal/usecase/queue"
)

func waitForMigrations(ctx context.Context, logger *slog.Logger, database *sql.DB) error {
	for i := 0; i < 10; i++ {
		ok, err := db.Ready(ctx, database)
		if err == nil && ok {
			return nil
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return errors.New("migrations did not complete in time")
}

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", slog.String("error", logging.SanitizeError(err)))
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := initDatabase(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	workerMetrics := workerPkg.NewWorkerMetrics()
	cfg := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Duration("base_backoff", cfg.BaseBackoff),
		slog.Duration("max_backoff", cfg.MaxBackoff),
		slog.Duration("tick_timeout", cfg.TickTimeout),
		slog.Int("health_port", cfg.HealthPort),
		slog.Int("metrics_port", cfg.MetricsPort))

	application, err := app.New(ctx, logger, database, app.OptionsFromEnv(logger))
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("failed to close services", slog.Any("error", err))
		}
	}()

	worker := application.NewWorker(cfg.QueueConfig())

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger,
		application.ReadinessChecks(database)...)
	healthServer.Handle("/health/channels", channelHealthHandler(application.Delivery.Registry()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return healthServer.Start(gctx) })
	g.Go(func() error { return startMetricsServer(gctx, logger, cfg.MetricsPort, application.Queue) })
	g.Go(func() error {
		return startCronWorker(gctx, logger, worker, database, cfg, workerMetrics, healthServer)
	})
	return g.Wait()
}

// initDatabase opens the database and either applies migrations (MIGRATE_ON_START=true)
// or waits for another process to apply them.
func initDatabase(ctx context.Context, logger *slog.Logger) (*sql.DB, error) {
	database, err := db.Open(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	migrate := pkgconfig.LoadBool("MIGRATE_ON_START", false)
	pkgconfig.Track(nil, logger, migrate)
	if migrate.Value {
		err = db.MigrateUp(ctx, database)
	} else {
		err = waitForMigrations(ctx, logger, database)
	}
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// startCronWorker schedules queue ticks and blocks until ctx is cancelled. A tick in
// flight at shutdown is allowed to finish.
func startCronWorker(ctx context.Context, logger *slog.Logger, worker *queue.Worker, database *sql.DB,
	cfg *workerPkg.WorkerConfig, m *workerPkg.WorkerMetrics, healthServer *workerPkg.HealthServer) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	if _, err := c.AddFunc(cfg.CronSchedule, func() {
		runQueueTick(ctx, logger, worker, database, cfg, m)
	}); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker started", slog.String("schedule", cfg.CronSchedule), slog.String("timezone", cfg.Timezone))

	<-ctx.Done()
	healthServer.SetReady(false)
	<-c.Stop().Done()
	logger.Info("worker stopped")
	return nil
}

// runQueueTick runs one worker pass under the tick deadline and records its outcome.
func runQueueTick(ctx context.Context, logger *slog.Logger, worker *queue.Worker, database *sql.DB,
	cfg *workerPkg.WorkerConfig, m *workerPkg.WorkerMetrics) {
	start := time.Now()

	// Shutdown should not cut a tick short, so the deadline hangs off a fresh context.
	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.TickTimeout)
	defer cancel()

	report, err := worker.RunOnce(tickCtx)
	m.ObserveTick(report, time.Since(start), err)

	stats := database.Stats()
	metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)

	if err != nil {
		logger.Error("queue tick failed", slog.String("error", logging.SanitizeError(err)))
		return
	}
	if report.Skipped {
		logger.Warn("queue tick skipped, previous tick still running")
		return
	}
	logger.Info("queue tick completed",
		slog.Int("claimed", report.Claimed),
		slog.Int("delivered", report.Delivered),
		slog.Int("retried", report.Retried),
		slog.Int("failed", report.Failed),
		slog.Int("lost_claims", report.LostClaims),
		slog.Int64("requeued", report.Requeued),
		slog.Int64("purged", report.Purged),
		slog.Duration("duration", time.Since(start)))
}
