package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guest-delivery/internal/domain/entity"
)

func TestService_EnqueueDefaults(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, prefixSubstituter{}, nil)

	id, err := svc.Enqueue(context.Background(), entity.DeliveryRequest{
		RecipientID: 3,
		EventID:     7,
		Title:       "Welcome",
		Body:        "See you soon",
	}, EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	item := repo.byMessage(id)
	require.NotNil(t, item)
	assert.Equal(t, entity.QueuePending, item.Status)
	assert.Equal(t, entity.DefaultPriority, item.Priority)
	assert.Equal(t, entity.DefaultMaxRetries, item.MaxRetries)
	assert.Equal(t, entity.KindMessage, item.Kind)
	assert.Equal(t, "[subst] See you soon", item.Body)
	assert.Zero(t, item.RetryCount)
	assert.Nil(t, item.ScheduledAt)
}

func TestService_EnqueueKeepsCallerMessageID(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)

	id, err := svc.Enqueue(context.Background(), entity.DeliveryRequest{
		MessageID:   "invite-1",
		RecipientID: 3,
		Body:        "hello",
	}, EnqueueOptions{Priority: 9, MaxRetries: 5})
	require.NoError(t, err)
	assert.Equal(t, "invite-1", id)

	item := repo.byMessage("invite-1")
	assert.Equal(t, 9, item.Priority)
	assert.Equal(t, 5, item.MaxRetries)
	assert.Equal(t, "hello", item.Body)

	_, err = svc.Enqueue(context.Background(), entity.DeliveryRequest{
		MessageID:   "invite-1",
		RecipientID: 3,
		Body:        "again",
	}, EnqueueOptions{})
	assert.ErrorIs(t, err, entity.ErrAlreadyExists)
}

func TestService_EnqueueValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     entity.DeliveryRequest
		opts    EnqueueOptions
		wantErr error
	}{
		{
			name:    "priority above range",
			req:     entity.DeliveryRequest{RecipientID: 1, Body: "x"},
			opts:    EnqueueOptions{Priority: 11},
			wantErr: ErrInvalidPriority,
		},
		{
			name:    "negative priority",
			req:     entity.DeliveryRequest{RecipientID: 1, Body: "x"},
			opts:    EnqueueOptions{Priority: -1},
			wantErr: ErrInvalidPriority,
		},
		{
			name:    "negative max retries",
			req:     entity.DeliveryRequest{RecipientID: 1, Body: "x"},
			opts:    EnqueueOptions{MaxRetries: -2},
			wantErr: ErrInvalidMaxRetries,
		},
		{
			name:    "missing recipient",
			req:     entity.DeliveryRequest{Body: "x"},
			wantErr: entity.ErrValidationFailed,
		},
		{
			name:    "empty content",
			req:     entity.DeliveryRequest{RecipientID: 1},
			wantErr: entity.ErrValidationFailed,
		},
		{
			name:    "unknown channel",
			req:     entity.DeliveryRequest{RecipientID: 1, Body: "x", PreferredChannel: "PIGEON"},
			wantErr: entity.ErrValidationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			svc := NewService(repo, nil, nil)

			_, err := svc.Enqueue(context.Background(), tt.req, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, repo.items)
		})
	}
}

func TestService_GetAndLists(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for i, rid := range []int64{1, 1, 2} {
		_, err := svc.Enqueue(ctx, entity.DeliveryRequest{
			MessageID:   []string{"a", "b", "c"}[i],
			RecipientID: rid,
			EventID:     7,
			Body:        "x",
		}, EnqueueOptions{})
		require.NoError(t, err)
	}

	item, err := svc.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.RecipientID)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	byRecipient, err := svc.ListByRecipient(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, byRecipient, 2)
	assert.Equal(t, "b", byRecipient[0].MessageID)

	byEvent, err := svc.ListByEvent(ctx, 7, 1)
	require.NoError(t, err)
	assert.Len(t, byEvent, 1)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, normalizeLimit(0))
	assert.Equal(t, DefaultListLimit, normalizeLimit(-4))
	assert.Equal(t, 10, normalizeLimit(10))
	assert.Equal(t, maxListLimit, normalizeLimit(10_000))
}

func TestService_StatsZeroFilled(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	_, err := svc.Enqueue(context.Background(), entity.DeliveryRequest{RecipientID: 1, Body: "x"}, EnqueueOptions{})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Len(t, stats, len(entity.AllQueueStatuses))
	assert.Equal(t, int64(1), stats[entity.QueuePending])
	assert.Equal(t, int64(0), stats[entity.QueueFailed])
	assert.Equal(t, int64(1), stats.Total())
}

func TestService_ReceiptPrefersCache(t *testing.T) {
	repo := newMemRepo()
	cached := &entity.DeliveryReceipt{MessageID: "m1", Channel: entity.ChannelSMS, ProviderStatus: "SENT"}
	svc := NewService(repo, nil, &memReceipts{data: map[string]*entity.DeliveryReceipt{"m1": cached}})

	got, err := svc.Receipt(context.Background(), "m1")
	require.NoError(t, err)
	assert.Same(t, cached, got)
}

func TestService_ReceiptFallsBackToRow(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, &memReceipts{err: errors.New("redis down")})
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, entity.DeliveryRequest{MessageID: "m1", RecipientID: 4, Body: "x"}, EnqueueOptions{})
	require.NoError(t, err)

	_, err = svc.Receipt(ctx, "m1")
	assert.ErrorIs(t, err, entity.ErrNotFound, "pending rows have no receipt")

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	claimed, err := repo.ClaimNext(ctx, at)
	require.NoError(t, err)
	require.NoError(t, repo.MarkDelivered(ctx, claimed.ID, entity.ChannelEmail, "SENT", at))

	got, err := svc.Receipt(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, entity.ChannelEmail, got.Channel)
	assert.Equal(t, int64(4), got.RecipientID)
	assert.True(t, got.DeliveredAt.Equal(at))

	_, err = svc.Receipt(ctx, "unknown")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
