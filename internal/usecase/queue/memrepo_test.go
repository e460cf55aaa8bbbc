package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/repository"
)

// memRepo is an in-memory QueueRepository with the same claim and conditional-update rules
// as the Postgres adapter.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*entity.QueueItem
	// history records every status a row moved through, keyed by message id.
	history map[string][]entity.QueueStatus

	purgedBefore time.Time
	purgeCalls   int
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[int64]*entity.QueueItem{}, history: map[string][]entity.QueueStatus{}}
}

func (m *memRepo) setStatus(it *entity.QueueItem, st entity.QueueStatus) {
	it.Status = st
	m.history[it.MessageID] = append(m.history[it.MessageID], st)
}

func clone(it *entity.QueueItem) *entity.QueueItem {
	c := *it
	return &c
}

func (m *memRepo) Insert(_ context.Context, item *entity.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.MessageID == item.MessageID {
			return entity.ErrAlreadyExists
		}
	}
	m.nextID++
	item.ID = m.nextID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Date(2026, 5, 1, 9, 0, 0, int(m.nextID), time.UTC)
	}
	item.RetryCount = 0
	stored := clone(item)
	m.items[item.ID] = stored
	m.setStatus(stored, entity.QueuePending)
	return nil
}

func (m *memRepo) ClaimNext(_ context.Context, now time.Time) (*entity.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*entity.QueueItem
	for _, it := range m.items {
		if it.DueAt(now) {
			due = append(due, it)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ID < due[j].ID
	})
	it := due[0]
	m.setStatus(it, entity.QueueProcessing)
	started := now
	it.ProcessingStartedAt = &started
	return clone(it), nil
}

func (m *memRepo) claimed(id int64) (*entity.QueueItem, error) {
	it, ok := m.items[id]
	if !ok || it.Status != entity.QueueProcessing {
		return nil, repository.ErrNotClaimed
	}
	return it, nil
}

func (m *memRepo) MarkDelivered(_ context.Context, id int64, ch entity.Channel, providerStatus string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.claimed(id)
	if err != nil {
		return err
	}
	m.setStatus(it, entity.QueueDelivered)
	it.DeliveredChan = ch
	it.ProviderStatus = providerStatus
	it.Error = ""
	it.ProcessedAt = &at
	return nil
}

func (m *memRepo) MarkRetry(_ context.Context, id int64, retryCount int, nextRetryAt time.Time, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.claimed(id)
	if err != nil {
		return err
	}
	m.setStatus(it, entity.QueueRetry)
	it.RetryCount = retryCount
	it.NextRetryAt = &nextRetryAt
	it.Error = errMsg
	it.ProcessingStartedAt = nil
	return nil
}

func (m *memRepo) MarkFailed(_ context.Context, id int64, retryCount int, errMsg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.claimed(id)
	if err != nil {
		return err
	}
	m.setStatus(it, entity.QueueFailed)
	it.RetryCount = retryCount
	it.Error = errMsg
	it.ProcessedAt = &at
	it.NextRetryAt = nil
	return nil
}

func (m *memRepo) RequeueStale(_ context.Context, startedBefore, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.items {
		if it.Status != entity.QueueProcessing || it.ProcessingStartedAt == nil || !it.ProcessingStartedAt.Before(startedBefore) {
			continue
		}
		it.RetryCount++
		if it.RetryCount >= it.MaxRetries {
			m.setStatus(it, entity.QueueFailed)
		} else {
			m.setStatus(it, entity.QueueRetry)
		}
		next := now
		it.NextRetryAt = &next
		it.ProcessingStartedAt = nil
		it.Error = "processing lease expired"
		n++
	}
	return n, nil
}

func (m *memRepo) PurgeDelivered(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeCalls++
	m.purgedBefore = before
	var n int64
	for id, it := range m.items {
		if it.Status == entity.QueueDelivered && it.ProcessedAt != nil && it.ProcessedAt.Before(before) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) GetByMessageID(_ context.Context, messageID string) (*entity.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.MessageID == messageID {
			return clone(it), nil
		}
	}
	return nil, nil
}

func (m *memRepo) list(match func(*entity.QueueItem) bool, limit int) []*entity.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.QueueItem
	for _, it := range m.items {
		if match(it) {
			out = append(out, clone(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memRepo) ListByRecipient(_ context.Context, recipientID int64, limit int) ([]*entity.QueueItem, error) {
	return m.list(func(it *entity.QueueItem) bool { return it.RecipientID == recipientID }, limit), nil
}

func (m *memRepo) ListByEvent(_ context.Context, eventID int64, limit int) ([]*entity.QueueItem, error) {
	return m.list(func(it *entity.QueueItem) bool { return it.EventID == eventID }, limit), nil
}

func (m *memRepo) CountByStatus(_ context.Context) (entity.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := entity.QueueStats{}
	for _, it := range m.items {
		stats[it.Status]++
	}
	return stats, nil
}

func (m *memRepo) byMessage(messageID string) *entity.QueueItem {
	it, _ := m.GetByMessageID(context.Background(), messageID)
	return it
}

// fakeDeliverer returns a fixed result and records requests.
type fakeDeliverer struct {
	mu     sync.Mutex
	result func(req entity.DeliveryRequest) entity.DeliveryResult
	reqs   []entity.DeliveryRequest
}

func (f *fakeDeliverer) Deliver(_ context.Context, req entity.DeliveryRequest) entity.DeliveryResult {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.result(req)
}

func alwaysSucceed(req entity.DeliveryRequest) entity.DeliveryResult {
	return entity.SentResult(entity.ChannelEmail, "mail-"+req.MessageID, time.Time{})
}

func alwaysFail(entity.DeliveryRequest) entity.DeliveryResult {
	return entity.FailedResult(entity.ChannelSMS, "gateway timeout", time.Time{})
}

type prefixSubstituter struct{}

func (prefixSubstituter) Substitute(_ context.Context, req entity.DeliveryRequest) entity.DeliveryRequest {
	req.Body = "[subst] " + req.Body
	return req
}

type memReceipts struct {
	data map[string]*entity.DeliveryReceipt
	err  error
}

func (r *memReceipts) Put(_ context.Context, rec *entity.DeliveryReceipt) error {
	if r.err != nil {
		return r.err
	}
	if r.data == nil {
		r.data = map[string]*entity.DeliveryReceipt{}
	}
	r.data[rec.MessageID] = rec
	return nil
}

func (r *memReceipts) Get(_ context.Context, id string) (*entity.DeliveryReceipt, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.data[id], nil
}
