package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/observability/metrics"
	"guest-delivery/internal/observability/slo"
	"guest-delivery/internal/observability/tracing"
	"guest-delivery/internal/repository"
	"guest-delivery/internal/resilience/retry"
)

// Deliverer performs resolve and dispatch for a request whose text is already final.
type Deliverer interface {
	Deliver(ctx context.Context, req entity.DeliveryRequest) entity.DeliveryResult
}

// WorkerConfig tunes one worker.
type WorkerConfig struct {
	// BatchSize is the maximum number of rows claimed per tick.
	BatchSize int
	// BaseBackoff is the delay before the first retry; each later retry doubles it.
	BaseBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// StaleAfter is the PROCESSING lease. Rows held longer are requeued at the next tick.
	StaleAfter time.Duration
	// Retention is how long DELIVERED rows are kept. Zero disables purging.
	Retention time.Duration
	// PurgeEvery is the minimum interval between retention purges.
	PurgeEvery time.Duration
}

// DefaultWorkerConfig returns the defaults used when no environment overrides are set.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:   20,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  time.Hour,
		StaleAfter:  15 * time.Minute,
		Retention:   30 * 24 * time.Hour,
		PurgeEvery:  time.Hour,
	}
}

// TickReport summarises one RunOnce.
type TickReport struct {
	Skipped    bool
	Requeued   int64
	Claimed    int
	Delivered  int
	Retried    int
	Failed     int
	LostClaims int
	Purged     int64
}

// Worker drains the delivery queue. RunOnce is safe to call from a scheduler that may fire
// while a previous tick is still running; the overlapping call returns immediately.
type Worker struct {
	repo      repository.QueueRepository
	deliverer Deliverer
	receipts  ReceiptCache
	cfg       WorkerConfig
	now       func() time.Time

	running   sync.Mutex
	lastPurge time.Time
}

// NewWorker creates a worker. receipts may be nil.
func NewWorker(repo repository.QueueRepository, deliverer Deliverer, receipts ReceiptCache, cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWorkerConfig().BatchSize
	}
	return &Worker{
		repo:      repo,
		deliverer: deliverer,
		receipts:  receipts,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RunOnce expires stale leases, then claims and processes due rows until the batch is full,
// nothing is due, or ctx is done. Delivered rows past retention are purged at most once per
// PurgeEvery.
func (w *Worker) RunOnce(ctx context.Context) (TickReport, error) {
	var report TickReport
	if !w.running.TryLock() {
		report.Skipped = true
		return report, nil
	}
	defer w.running.Unlock()

	logger := logging.FromContext(ctx)
	now := w.now()

	if w.cfg.StaleAfter > 0 {
		n, err := w.repo.RequeueStale(ctx, now.Add(-w.cfg.StaleAfter), now)
		if err != nil {
			return report, fmt.Errorf("requeue stale: %w", err)
		}
		report.Requeued = n
		metrics.RecordStaleRequeued(n)
		if n > 0 {
			logger.Warn("requeued stale processing rows", slog.Int64("count", n))
		}
	}

	for report.Claimed < w.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		item, err := w.repo.ClaimNext(ctx, w.now())
		if err != nil {
			return report, fmt.Errorf("claim: %w", err)
		}
		if item == nil {
			break
		}
		report.Claimed++
		switch w.process(ctx, item) {
		case metrics.OutcomeDelivered:
			report.Delivered++
		case metrics.OutcomeRetry:
			report.Retried++
		case metrics.OutcomeFailed:
			report.Failed++
		case metrics.OutcomeLostClaim:
			report.LostClaims++
		}
	}

	if w.cfg.Retention > 0 && now.Sub(w.lastPurge) >= w.cfg.PurgeEvery {
		n, err := w.repo.PurgeDelivered(ctx, now.Add(-w.cfg.Retention))
		if err != nil {
			logger.Warn("purge delivered rows failed", slog.String("error", logging.SanitizeError(err)))
		} else {
			w.lastPurge = now
			report.Purged = n
			metrics.RecordPurged(n)
		}
	}

	if stats, err := w.repo.CountByStatus(ctx); err == nil {
		metrics.UpdateQueueDepth(stats)
		slo.Update(stats)
	}

	if report.Claimed > 0 || report.Requeued > 0 {
		logger.Info("queue tick finished",
			slog.Int("claimed", report.Claimed),
			slog.Int("delivered", report.Delivered),
			slog.Int("retried", report.Retried),
			slog.Int("failed", report.Failed),
			slog.Int("lost_claims", report.LostClaims),
			slog.Int64("requeued", report.Requeued))
	}
	return report, nil
}

// process delivers one claimed item and records the outcome on its row.
func (w *Worker) process(ctx context.Context, item *entity.QueueItem) string {
	logger := logging.WithMessageID(logging.FromContext(ctx), item.MessageID).
		With(slog.Int64("queue_id", item.ID))
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := tracing.StartSpan(ctx, "queue.process",
		attribute.Int64("queue_id", item.ID),
		attribute.String("message_id", item.MessageID),
		attribute.Int("retry_count", item.RetryCount))
	defer span.End()

	if item.ProcessingStartedAt != nil {
		metrics.RecordClaimLag(item.ProcessingStartedAt.Sub(dueTime(item)))
	}

	res := w.deliver(ctx, item)
	now := w.now()

	var outcome string
	var err error
	switch {
	case res.Success:
		outcome = metrics.OutcomeDelivered
		err = w.repo.MarkDelivered(ctx, item.ID, res.Channel, res.Status, now)
		if err == nil {
			w.storeReceipt(ctx, item, res, now)
		}
	default:
		retryCount := item.RetryCount + 1
		if item.RetriesLeft(retryCount) {
			outcome = metrics.OutcomeRetry
			next := now.Add(retry.Exponential(w.cfg.BaseBackoff, w.cfg.MaxBackoff, retryCount-1))
			err = w.repo.MarkRetry(ctx, item.ID, retryCount, next, res.Error)
			logger.Warn("delivery failed, retry scheduled",
				slog.Int("retry_count", retryCount),
				slog.Int("max_retries", item.MaxRetries),
				slog.Time("next_retry_at", next),
				slog.String("error", res.Error))
		} else {
			outcome = metrics.OutcomeFailed
			err = w.repo.MarkFailed(ctx, item.ID, retryCount, res.Error, now)
			logger.Error("delivery failed permanently",
				slog.Int("retry_count", retryCount),
				slog.String("error", res.Error))
		}
	}

	if err != nil {
		if isLostClaim(err) {
			logger.Warn("queue row no longer claimed, outcome dropped", slog.String("outcome", outcome))
			outcome = metrics.OutcomeLostClaim
		} else {
			tracing.RecordError(span, err)
			logger.Error("failed to record queue outcome",
				slog.String("outcome", outcome),
				slog.String("error", logging.SanitizeError(err)))
		}
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	metrics.RecordQueueOutcome(outcome)
	return outcome
}

// deliver runs the deliverer, turning a panic into a failed attempt.
func (w *Worker) deliver(ctx context.Context, item *entity.QueueItem) (res entity.DeliveryResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("panic while delivering queue item",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			res = entity.FailedResult(item.PreferredChan, fmt.Sprintf("internal error: %v", r), w.now())
		}
	}()
	return w.deliverer.Deliver(ctx, item.Request())
}

func (w *Worker) storeReceipt(ctx context.Context, item *entity.QueueItem, res entity.DeliveryResult, at time.Time) {
	if w.receipts == nil {
		return
	}
	r := &entity.DeliveryReceipt{
		MessageID:      item.MessageID,
		RecipientID:    item.RecipientID,
		Channel:        res.Channel,
		ProviderStatus: res.Status,
		DeliveredAt:    at,
	}
	if err := w.receipts.Put(ctx, r); err != nil {
		logging.FromContext(ctx).Warn("receipt cache write failed", slog.String("error", logging.SanitizeError(err)))
	}
}

// dueTime is when the item became claimable.
func dueTime(item *entity.QueueItem) time.Time {
	due := item.CreatedAt
	if item.ScheduledAt != nil && item.ScheduledAt.After(due) {
		due = *item.ScheduledAt
	}
	if item.NextRetryAt != nil && item.NextRetryAt.After(due) {
		due = *item.NextRetryAt
	}
	return due
}
