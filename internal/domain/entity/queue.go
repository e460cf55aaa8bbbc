package entity

import (
	"fmt"
	"time"
)

// QueueStatus is the lifecycle state of a queued message.
type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueProcessing QueueStatus = "PROCESSING"
	QueueDelivered  QueueStatus = "DELIVERED"
	QueueRetry      QueueStatus = "RETRY"
	QueueFailed     QueueStatus = "FAILED"
)

// AllQueueStatuses lists every status in dashboard order.
var AllQueueStatuses = []QueueStatus{QueuePending, QueueProcessing, QueueDelivered, QueueFailed, QueueRetry}

// Queue defaults and bounds.
const (
	DefaultMaxRetries = 3
	DefaultPriority   = 5
	MinPriority       = 1
	MaxPriority       = 10
)

// Terminal reports whether no further transition is possible.
func (s QueueStatus) Terminal() bool {
	return s == QueueDelivered || s == QueueFailed
}

// Claimable reports whether a row in this status may be picked up by a worker.
func (s QueueStatus) Claimable() bool {
	return s == QueuePending || s == QueueRetry
}

// QueueItem is a persisted unit of deferred delivery work.
type QueueItem struct {
	ID             int64
	MessageID      string
	Kind           MessageKind
	RecipientID    int64
	EventID        int64
	SenderID       string
	Title          string
	Body           string
	TemplateName   string
	PreferredChan  Channel
	DeliveredChan  Channel
	Status         QueueStatus
	ProviderStatus string
	Error          string
	RetryCount     int
	MaxRetries     int
	Priority       int

	CreatedAt           time.Time
	ScheduledAt         *time.Time
	ProcessingStartedAt *time.Time
	ProcessedAt         *time.Time
	NextRetryAt         *time.Time
}

// Validate checks a new item before it is persisted.
func (q *QueueItem) Validate() error {
	if q.MessageID == "" {
		return &ValidationError{Field: "message_id", Message: "message id is required"}
	}
	if q.RecipientID <= 0 {
		return &ValidationError{Field: "recipient_id", Message: "recipient is required"}
	}
	if err := ValidatePriority(q.Priority); err != nil {
		return err
	}
	if q.MaxRetries < 1 {
		return &ValidationError{Field: "max_retries", Message: "must be at least 1"}
	}
	if q.PreferredChan != "" && !q.PreferredChan.Valid() {
		return &ValidationError{Field: "preferred_channel", Message: "unknown channel"}
	}
	return nil
}

// DueAt reports whether the item may be claimed at now.
func (q *QueueItem) DueAt(now time.Time) bool {
	if !q.Status.Claimable() {
		return false
	}
	if q.ScheduledAt != nil && q.ScheduledAt.After(now) {
		return false
	}
	if q.NextRetryAt != nil && q.NextRetryAt.After(now) {
		return false
	}
	return true
}

// RetriesLeft reports whether another attempt is allowed once retryCount failures were recorded.
func (q *QueueItem) RetriesLeft(retryCount int) bool {
	return retryCount < q.MaxRetries
}

// Request rebuilds the delivery request from the stored, already substituted content.
func (q *QueueItem) Request() DeliveryRequest {
	return DeliveryRequest{
		MessageID:        q.MessageID,
		Kind:             q.Kind,
		Title:            q.Title,
		Body:             q.Body,
		TemplateName:     q.TemplateName,
		RecipientID:      q.RecipientID,
		EventID:          q.EventID,
		PreferredChannel: q.PreferredChan,
		SenderID:         q.SenderID,
	}
}

// QueueStats holds row counts per status.
type QueueStats map[QueueStatus]int64

// Total returns the number of rows across all statuses.
func (s QueueStats) Total() int64 {
	var n int64
	for _, c := range s {
		n += c
	}
	return n
}

// String renders the counts in dashboard order.
func (s QueueStats) String() string {
	out := ""
	for i, st := range AllQueueStatuses {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", st, s[st])
	}
	return out
}

// DeliveryReceipt is the cached summary of a delivered queue item.
type DeliveryReceipt struct {
	MessageID      string    `json:"message_id"`
	RecipientID    int64     `json:"recipient_id"`
	Channel        Channel   `json:"channel"`
	ProviderStatus string    `json:"provider_status"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

// Receipt builds the receipt of a delivered item, or nil when it is not delivered.
func (q *QueueItem) Receipt() *DeliveryReceipt {
	if q.Status != QueueDelivered {
		return nil
	}
	r := &DeliveryReceipt{
		MessageID:      q.MessageID,
		RecipientID:    q.RecipientID,
		Channel:        q.DeliveredChan,
		ProviderStatus: q.ProviderStatus,
	}
	if q.ProcessedAt != nil {
		r.DeliveredAt = *q.ProcessedAt
	}
	return r
}
