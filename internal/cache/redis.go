// Package cache holds the Redis-backed delivery receipt cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"guest-delivery/internal/domain/entity"
)

// DefaultReceiptTTL keeps receipts for a week.
const DefaultReceiptTTL = 7 * 24 * time.Hour

const receiptKeyPrefix = "receipt:"

// RedisReceiptCache stores delivery receipts as JSON under receipt:<message_id>.
type RedisReceiptCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisReceiptCache creates a cache; ttl <= 0 uses DefaultReceiptTTL.
func NewRedisReceiptCache(rdb *redis.Client, ttl time.Duration) *RedisReceiptCache {
	if ttl <= 0 {
		ttl = DefaultReceiptTTL
	}
	return &RedisReceiptCache{rdb: rdb, ttl: ttl}
}

// NewRedisClient connects to addr and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func receiptKey(messageID string) string {
	return receiptKeyPrefix + messageID
}

// Put stores r, overwriting any previous receipt for the same message.
func (c *RedisReceiptCache) Put(ctx context.Context, r *entity.DeliveryReceipt) error {
	if r == nil || r.MessageID == "" {
		return errors.New("receipt without message id")
	}
	stored := *r
	stored.DeliveredAt = stored.DeliveredAt.UTC()
	b, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, receiptKey(r.MessageID), b, c.ttl).Err()
}

// Get returns the receipt for messageID, or nil, nil when none is cached.
func (c *RedisReceiptCache) Get(ctx context.Context, messageID string) (*entity.DeliveryReceipt, error) {
	raw, err := c.rdb.Get(ctx, receiptKey(messageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r entity.DeliveryReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode receipt %s: %w", messageID, err)
	}
	return &r, nil
}

// Ping reports whether Redis is reachable.
func (c *RedisReceiptCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
