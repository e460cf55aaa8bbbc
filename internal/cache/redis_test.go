package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guest-delivery/internal/domain/entity"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisReceiptCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisReceiptCache(rdb, ttl), mr
}

func TestRedisReceiptCache_PutAndGet(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	at := time.Date(2026, 6, 20, 19, 30, 0, 0, time.FixedZone("WEST", 3600))
	err := c.Put(ctx, &entity.DeliveryReceipt{
		MessageID:      "m-1",
		RecipientID:    42,
		Channel:        entity.ChannelSMS,
		ProviderStatus: "SENT",
		DeliveredAt:    at,
	})
	require.NoError(t, err)

	require.True(t, mr.Exists("receipt:m-1"))
	assert.Equal(t, time.Hour, mr.TTL("receipt:m-1"))

	raw, err := mr.Get("receipt:m-1")
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "SMS", stored["channel"])
	assert.Equal(t, "2026-06-20T18:30:00Z", stored["delivered_at"])

	got, err := c.Get(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.RecipientID)
	assert.Equal(t, entity.ChannelSMS, got.Channel)
	assert.True(t, got.DeliveredAt.Equal(at))
}

func TestRedisReceiptCache_Miss(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, time.Minute)

	got, err := c.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisReceiptCache_Expiry(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, &entity.DeliveryReceipt{MessageID: "m-2"}))
	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, "m-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisReceiptCache_DefaultTTL(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t, 0)

	require.NoError(t, c.Put(context.Background(), &entity.DeliveryReceipt{MessageID: "m-3"}))
	assert.Equal(t, DefaultReceiptTTL, mr.TTL("receipt:m-3"))
}

func TestRedisReceiptCache_CorruptValue(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set("receipt:bad", "{not json"))

	_, err := c.Get(context.Background(), "bad")
	assert.Error(t, err)
}

func TestRedisReceiptCache_RejectsEmptyID(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(t, time.Minute)

	assert.Error(t, c.Put(context.Background(), &entity.DeliveryReceipt{}))
	assert.Error(t, c.Put(context.Background(), nil))
}

func TestRedisReceiptCache_ServerDown(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t, time.Minute)
	mr.Close()

	_, err := c.Get(context.Background(), "m-1")
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewRedisClient(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	_ = rdb.Close()

	_, err = NewRedisClient(context.Background(), "", "", 0)
	assert.Error(t, err)
}
