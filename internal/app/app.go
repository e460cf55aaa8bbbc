// Package app wires transports, providers, repositories and services for the worker and
// the operator CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"guest-delivery/internal/cache"
	"guest-delivery/internal/config"
	pgRepo "guest-delivery/internal/infra/adapter/persistence/postgres"
	"guest-delivery/internal/infra/notifier"
	"guest-delivery/internal/infra/worker"
	"guest-delivery/internal/observability/logging"
	pkgconfig "guest-delivery/internal/pkg/config"
	"guest-delivery/internal/repository"
	"guest-delivery/internal/usecase/delivery"
	"guest-delivery/internal/usecase/ledger"
	"guest-delivery/internal/usecase/queue"
)

// Options are the wiring settings that do not belong to a single component.
type Options struct {
	ProvidersPath string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReceiptTTL    time.Duration
}

// OptionsFromEnv reads PROVIDERS_CONFIG, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB and RECEIPT_TTL.
func OptionsFromEnv(logger *slog.Logger) Options {
	path := pkgconfig.LoadString("PROVIDERS_CONFIG", "config/providers.yaml", nil)
	addr := pkgconfig.LoadString("REDIS_ADDR", "", nil)
	redisDB := pkgconfig.LoadInt("REDIS_DB", 0, pkgconfig.IntRange(0, 15))
	ttl := pkgconfig.LoadDuration("RECEIPT_TTL", cache.DefaultReceiptTTL, pkgconfig.ValidatePositiveDuration)
	pkgconfig.Track(nil, logger, redisDB)
	pkgconfig.Track(nil, logger, ttl)

	return Options{
		ProvidersPath: path.Value,
		RedisAddr:     addr.Value,
		RedisPassword: pkgconfig.Secret("REDIS_PASSWORD"),
		RedisDB:       redisDB.Value,
		ReceiptTTL:    ttl.Value,
	}
}

// App holds the wired services.
type App struct {
	Providers *config.ProviderConfig
	Delivery  *delivery.Service
	Queue     *queue.Service
	Ledger    *ledger.Service
	QueueRepo repository.QueueRepository
	// Receipts is nil when Redis is not configured or unreachable.
	Receipts queue.ReceiptCache

	receiptCache *cache.RedisReceiptCache
	closers      []func() error
}

// New builds every service on top of database. Transports without configuration stay
// unconfigured, so sends on their channels are recorded for manual follow-up.
func New(ctx context.Context, logger *slog.Logger, database *sql.DB, opts Options) (*App, error) {
	providerCfg, found, err := config.LoadProviderConfig(opts.ProvidersPath)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Warn("provider config not found, only the internal channel is configured",
			slog.String("path", opts.ProvidersPath))
	}

	a := &App{Providers: providerCfg}

	directory := pgRepo.NewDirectoryRepo(database)
	notices := pgRepo.NewNoticeRepo(database)
	registry := BuildRegistry(providerCfg, notices)
	for _, h := range registry.ChannelHealth() {
		logger.Info("delivery channel",
			slog.String("channel", string(h.Channel)),
			slog.Bool("configured", h.Configured))
	}

	a.Delivery = delivery.NewService(registry, directory, directory, delivery.WithNoticeStore(notices))
	a.QueueRepo = pgRepo.NewQueueRepo(database)

	if opts.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		if err != nil {
			logger.Warn("receipt cache disabled", slog.String("error", logging.SanitizeError(err)))
		} else {
			a.receiptCache = cache.NewRedisReceiptCache(rdb, opts.ReceiptTTL)
			a.Receipts = a.receiptCache
			a.closers = append(a.closers, rdb.Close)
			logger.Info("receipt cache enabled", slog.String("addr", opts.RedisAddr))
		}
	}

	a.Queue = queue.NewService(a.QueueRepo, a.Delivery, a.Receipts)
	a.Ledger = ledger.NewService(pgRepo.NewLedgerRepo(database), directory, directory, a.Delivery,
		ledger.WithChannel(providerCfg.Ledger.Channel))
	return a, nil
}

// BuildRegistry creates one provider per channel. Disabled transports are registered
// without a client so their channel reports unconfigured.
func BuildRegistry(cfg *config.ProviderConfig, notices repository.NoticeStore) *delivery.Registry {
	var chat notifier.ChatSender
	if cfg.ChatCloud.Enabled {
		chat = notifier.NewChatCloudClient(cfg.ChatCloud.BaseURL, cfg.ChatCloud.Timeout, cfg.ChatCloud.RatePerSecond)
	}
	return delivery.NewRegistry(
		delivery.NewEmailProvider(notifier.NewSMTPMailer(cfg.SMTP())),
		delivery.NewSMSProvider(notifier.NewTwilioSMS(cfg.Twilio())),
		delivery.NewChatCloudProvider(chat, cfg.ChatCloud.Language),
		delivery.NewChatDeviceProvider(notifier.NewDeviceBridgeClient(
			cfg.DeviceBridgeURL(), cfg.DeviceBridgeToken(), cfg.ChatDevice.Timeout, cfg.ChatDevice.RatePerSecond)),
		delivery.NewNoticeProvider(notices),
	)
}

// ReadinessChecks probes the database and, when enabled, the receipt cache. The cache is
// optional: losing it slows receipt lookups but never stops delivery.
func (a *App) ReadinessChecks(database *sql.DB) []worker.ReadinessCheck {
	checks := []worker.ReadinessCheck{{Name: "database", Check: database.PingContext}}
	if a.receiptCache != nil {
		checks = append(checks, worker.ReadinessCheck{
			Name:     "receipt_cache",
			Check:    a.receiptCache.Ping,
			Optional: true,
		})
	}
	return checks
}

// NewWorker builds a queue worker over the app's queue and delivery service.
func (a *App) NewWorker(cfg queue.WorkerConfig) *queue.Worker {
	return queue.NewWorker(a.QueueRepo, a.Delivery, a.Receipts, cfg)
}

// Close releases connections opened by New. The database is owned by the caller.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}
