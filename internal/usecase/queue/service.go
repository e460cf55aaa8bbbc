// Package queue implements deferred delivery: Service persists requests as queue rows and
// Worker drains due rows through the delivery service, retrying with backoff.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/repository"
)

// DefaultListLimit bounds list queries when the caller passes no limit.
const DefaultListLimit = 50

const maxListLimit = 500

// Substituter fills placeholders before a request is persisted.
type Substituter interface {
	Substitute(ctx context.Context, req entity.DeliveryRequest) entity.DeliveryRequest
}

// ReceiptCache stores receipts of delivered items.
// Get returns nil, nil on a miss.
type ReceiptCache interface {
	Put(ctx context.Context, r *entity.DeliveryReceipt) error
	Get(ctx context.Context, messageID string) (*entity.DeliveryReceipt, error)
}

// EnqueueOptions are the optional settings of a queued send.
type EnqueueOptions struct {
	// ScheduledAt delays the first attempt; nil means as soon as possible.
	ScheduledAt *time.Time
	// Priority 1-10, higher first. Zero means entity.DefaultPriority.
	Priority int
	// MaxRetries is the number of failed attempts before FAILED. Zero means entity.DefaultMaxRetries.
	MaxRetries int
}

// Service is the enqueue and query surface of the delivery queue.
type Service struct {
	repo        repository.QueueRepository
	substituter Substituter
	receipts    ReceiptCache
}

// NewService creates a queue service. receipts may be nil.
func NewService(repo repository.QueueRepository, substituter Substituter, receipts ReceiptCache) *Service {
	return &Service{repo: repo, substituter: substituter, receipts: receipts}
}

// Enqueue persists req as a PENDING row and returns its message id. Text is substituted
// first so the row can be dispatched without reading the directories again. Nothing is
// delivered here.
func (s *Service) Enqueue(ctx context.Context, req entity.DeliveryRequest, opts EnqueueOptions) (string, error) {
	priority := opts.Priority
	if priority == 0 {
		priority = entity.DefaultPriority
	}
	if err := entity.ValidatePriority(priority); err != nil {
		return "", fmt.Errorf("%w: got %d", ErrInvalidPriority, priority)
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = entity.DefaultMaxRetries
	}
	if maxRetries < 0 {
		return "", ErrInvalidMaxRetries
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	if req.Kind == "" {
		req.Kind = entity.KindMessage
	}
	if s.substituter != nil {
		req = s.substituter.Substitute(ctx, req)
	}

	item := &entity.QueueItem{
		MessageID:     req.MessageID,
		Kind:          req.Kind,
		RecipientID:   req.RecipientID,
		EventID:       req.EventID,
		SenderID:      req.SenderID,
		Title:         req.Title,
		Body:          req.Body,
		TemplateName:  req.TemplateName,
		PreferredChan: req.PreferredChannel,
		Status:        entity.QueuePending,
		MaxRetries:    maxRetries,
		Priority:      priority,
		ScheduledAt:   opts.ScheduledAt,
	}
	if err := item.Validate(); err != nil {
		return "", err
	}
	if err := s.repo.Insert(ctx, item); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", item.MessageID, err)
	}

	logging.FromContext(ctx).Info("message enqueued",
		slog.String("message_id", item.MessageID),
		slog.Int64("queue_id", item.ID),
		slog.Int64("recipient_id", item.RecipientID),
		slog.Int("priority", item.Priority),
		slog.Bool("scheduled", item.ScheduledAt != nil))
	return item.MessageID, nil
}

// Get returns the row for messageID or entity.ErrNotFound.
func (s *Service) Get(ctx context.Context, messageID string) (*entity.QueueItem, error) {
	item, err := s.repo.GetByMessageID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("queue item %s: %w", messageID, entity.ErrNotFound)
	}
	return item, nil
}

// ListByRecipient returns the recipient's rows, newest first.
func (s *Service) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*entity.QueueItem, error) {
	return s.repo.ListByRecipient(ctx, recipientID, normalizeLimit(limit))
}

// ListByEvent returns the event's rows, newest first.
func (s *Service) ListByEvent(ctx context.Context, eventID int64, limit int) ([]*entity.QueueItem, error) {
	return s.repo.ListByEvent(ctx, eventID, normalizeLimit(limit))
}

// Stats returns row counts for every status, zero-filled.
func (s *Service) Stats(ctx context.Context) (entity.QueueStats, error) {
	stats, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	out := make(entity.QueueStats, len(entity.AllQueueStatuses))
	for _, st := range entity.AllQueueStatuses {
		out[st] = stats[st]
	}
	return out, nil
}

// Receipt returns the delivery receipt of messageID, reading the cache before the queue.
// It returns entity.ErrNotFound when the message is unknown or not delivered yet.
func (s *Service) Receipt(ctx context.Context, messageID string) (*entity.DeliveryReceipt, error) {
	if s.receipts != nil {
		r, err := s.receipts.Get(ctx, messageID)
		if err == nil && r != nil {
			return r, nil
		}
		if err != nil {
			logging.FromContext(ctx).Warn("receipt cache read failed",
				slog.String("message_id", messageID),
				slog.String("error", logging.SanitizeError(err)))
		}
	}
	item, err := s.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	r := item.Receipt()
	if r == nil {
		return nil, fmt.Errorf("message %s is %s: %w", messageID, item.Status, entity.ErrNotFound)
	}
	return r, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// isLostClaim reports whether err means another worker (or the stale sweep) owns the row now.
func isLostClaim(err error) bool {
	return errors.Is(err, repository.ErrNotClaimed)
}
