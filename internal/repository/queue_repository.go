package repository

import (
	"context"
	"time"

	"guest-delivery/internal/domain/entity"
)

// QueueRepository persists deferred deliveries. Every Mark* call only succeeds while the row
// is PROCESSING, so a row can only be completed by the worker that claimed it.
type QueueRepository interface {
	Insert(ctx context.Context, item *entity.QueueItem) error
	// ClaimNext atomically moves the oldest highest-priority due row to PROCESSING.
	// It returns nil, nil when nothing is due.
	ClaimNext(ctx context.Context, now time.Time) (*entity.QueueItem, error)
	MarkDelivered(ctx context.Context, id int64, ch entity.Channel, providerStatus string, at time.Time) error
	MarkRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string, at time.Time) error
	RequeueStale(ctx context.Context, startedBefore, now time.Time) (int64, error)
	PurgeDelivered(ctx context.Context, processedBefore time.Time) (int64, error)
	GetByMessageID(ctx context.Context, messageID string) (*entity.QueueItem, error)
	ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*entity.QueueItem, error)
	ListByEvent(ctx context.Context, eventID int64, limit int) ([]*entity.QueueItem, error)
	CountByStatus(ctx context.Context) (entity.QueueStats, error)
}
