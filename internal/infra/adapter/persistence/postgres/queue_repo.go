package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/repository"
)

// staleLeaseError is stored on rows requeued by RequeueStale.
const staleLeaseError = "processing lease expired"

var queueColumns = []string{
	"id", "message_id", "kind", "recipient_id", "event_id", "sender_id",
	"title", "body", "template_name", "preferred_channel", "delivered_channel",
	"status", "provider_status", "error_message", "retry_count", "max_retries", "priority",
	"created_at", "scheduled_at", "processing_started_at", "processed_at", "next_retry_at",
}

type QueueRepo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewQueueRepo(db *sql.DB) repository.QueueRepository {
	return &QueueRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(s rowScanner) (*entity.QueueItem, error) {
	var (
		it                                               entity.QueueItem
		kind, preferred, delivered, status               string
		scheduled, processingStarted, processed, nextTry sql.NullTime
	)
	if err := s.Scan(
		&it.ID, &it.MessageID, &kind, &it.RecipientID, &it.EventID, &it.SenderID,
		&it.Title, &it.Body, &it.TemplateName, &preferred, &delivered,
		&status, &it.ProviderStatus, &it.Error, &it.RetryCount, &it.MaxRetries, &it.Priority,
		&it.CreatedAt, &scheduled, &processingStarted, &processed, &nextTry,
	); err != nil {
		return nil, err
	}
	it.Kind = entity.MessageKind(kind)
	it.PreferredChan = entity.Channel(preferred)
	it.DeliveredChan = entity.Channel(delivered)
	it.Status = entity.QueueStatus(status)
	it.ScheduledAt = timePtr(scheduled)
	it.ProcessingStartedAt = timePtr(processingStarted)
	it.ProcessedAt = timePtr(processed)
	it.NextRetryAt = timePtr(nextTry)
	return &it, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (repo *QueueRepo) Insert(ctx context.Context, item *entity.QueueItem) error {
	q := repo.sb.
		Insert("delivery_queue").
		Columns("message_id", "kind", "recipient_id", "event_id", "sender_id", "title", "body",
			"template_name", "preferred_channel", "status", "retry_count", "max_retries", "priority", "scheduled_at").
		Values(item.MessageID, string(item.Kind), item.RecipientID, item.EventID, item.SenderID,
			item.Title, item.Body, item.TemplateName, string(item.PreferredChan), string(entity.QueuePending),
			0, item.MaxRetries, item.Priority, nullTime(item.ScheduledAt)).
		Suffix("RETURNING id, created_at")

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("Insert: build: %w", err)
	}
	if err := repo.db.QueryRowContext(ctx, query, args...).Scan(&item.ID, &item.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Insert: %w", entity.ErrAlreadyExists)
		}
		return fmt.Errorf("Insert: %w", err)
	}
	item.Status = entity.QueuePending
	item.RetryCount = 0
	return nil
}

// claimQuery moves one due row to PROCESSING in a single statement. SKIP LOCKED lets
// concurrent workers pass over a row another transaction is claiming instead of waiting.
var claimQuery = `
UPDATE delivery_queue
SET status = 'PROCESSING', processing_started_at = $1
WHERE id = (
    SELECT id FROM delivery_queue
    WHERE status IN ('PENDING', 'RETRY')
      AND (scheduled_at IS NULL OR scheduled_at <= $1)
      AND (next_retry_at IS NULL OR next_retry_at <= $1)
    ORDER BY priority DESC, created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + strings.Join(queueColumns, ", ")

func (repo *QueueRepo) ClaimNext(ctx context.Context, now time.Time) (*entity.QueueItem, error) {
	item, err := scanQueueItem(repo.db.QueryRowContext(ctx, claimQuery, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ClaimNext: %w", err)
	}
	return item, nil
}

func (repo *QueueRepo) execClaimed(ctx context.Context, op string, q sq.UpdateBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("%s: build: %w", op, err)
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotClaimed)
	}
	return nil
}

func (repo *QueueRepo) MarkDelivered(ctx context.Context, id int64, ch entity.Channel, providerStatus string, at time.Time) error {
	q := repo.sb.
		Update("delivery_queue").
		Set("status", string(entity.QueueDelivered)).
		Set("delivered_channel", string(ch)).
		Set("provider_status", providerStatus).
		Set("error_message", "").
		Set("processed_at", at).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": string(entity.QueueProcessing)})
	return repo.execClaimed(ctx, "MarkDelivered", q)
}

func (repo *QueueRepo) MarkRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, errMsg string) error {
	q := repo.sb.
		Update("delivery_queue").
		Set("status", string(entity.QueueRetry)).
		Set("retry_count", retryCount).
		Set("next_retry_at", nextRetryAt).
		Set("error_message", errMsg).
		Set("processing_started_at", nil).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": string(entity.QueueProcessing)})
	return repo.execClaimed(ctx, "MarkRetry", q)
}

func (repo *QueueRepo) MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string, at time.Time) error {
	q := repo.sb.
		Update("delivery_queue").
		Set("status", string(entity.QueueFailed)).
		Set("retry_count", retryCount).
		Set("provider_status", entity.ResultStatusFailed).
		Set("error_message", errMsg).
		Set("processed_at", at).
		Set("next_retry_at", nil).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": string(entity.QueueProcessing)})
	return repo.execClaimed(ctx, "MarkFailed", q)
}

// RequeueStale expires PROCESSING leases older than startedBefore. An expired lease counts as a
// failed attempt, so a message that keeps crashing the worker still reaches FAILED.
func (repo *QueueRepo) RequeueStale(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	q := repo.sb.
		Update("delivery_queue").
		Set("retry_count", sq.Expr("retry_count + 1")).
		Set("status", sq.Expr("CASE WHEN (retry_count + 1) >= max_retries THEN ? ELSE ? END",
			string(entity.QueueFailed), string(entity.QueueRetry))).
		Set("error_message", staleLeaseError).
		Set("next_retry_at", now).
		Set("processing_started_at", nil).
		Where(sq.Eq{"status": string(entity.QueueProcessing)}).
		Where(sq.Lt{"processing_started_at": startedBefore})

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("RequeueStale: build: %w", err)
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("RequeueStale: %w", err)
	}
	return res.RowsAffected()
}

func (repo *QueueRepo) PurgeDelivered(ctx context.Context, processedBefore time.Time) (int64, error) {
	q := repo.sb.
		Delete("delivery_queue").
		Where(sq.Eq{"status": string(entity.QueueDelivered)}).
		Where(sq.Lt{"processed_at": processedBefore})

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("PurgeDelivered: build: %w", err)
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("PurgeDelivered: %w", err)
	}
	return res.RowsAffected()
}

func (repo *QueueRepo) GetByMessageID(ctx context.Context, messageID string) (*entity.QueueItem, error) {
	query, args, err := repo.sb.
		Select(queueColumns...).
		From("delivery_queue").
		Where(sq.Eq{"message_id": messageID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("GetByMessageID: build: %w", err)
	}
	item, err := scanQueueItem(repo.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByMessageID: %w", err)
	}
	return item, nil
}

func (repo *QueueRepo) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*entity.QueueItem, error) {
	return repo.list(ctx, "ListByRecipient", sq.Eq{"recipient_id": recipientID}, limit)
}

func (repo *QueueRepo) ListByEvent(ctx context.Context, eventID int64, limit int) ([]*entity.QueueItem, error) {
	return repo.list(ctx, "ListByEvent", sq.Eq{"event_id": eventID}, limit)
}

func (repo *QueueRepo) list(ctx context.Context, op string, filter sq.Eq, limit int) ([]*entity.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := repo.sb.
		Select(queueColumns...).
		From("delivery_queue").
		Where(filter).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build: %w", op, err)
	}

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]*entity.QueueItem, 0, limit)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (repo *QueueRepo) CountByStatus(ctx context.Context) (entity.QueueStats, error) {
	query, args, err := repo.sb.
		Select("status", "COUNT(*)").
		From("delivery_queue").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("CountByStatus: build: %w", err)
	}

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(entity.QueueStats, len(entity.AllQueueStatuses))
	for _, st := range entity.AllQueueStatuses {
		stats[st] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("CountByStatus: %w", err)
		}
		stats[entity.QueueStatus(status)] = n
	}
	return stats, rows.Err()
}
