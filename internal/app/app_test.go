package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guest-delivery/internal/cache"
	"guest-delivery/internal/config"
	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/usecase/delivery"
	"guest-delivery/internal/usecase/queue"
)

type nopNotices struct{}

func (nopNotices) SaveNotice(context.Context, *entity.Notice) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func configured(health []delivery.ChannelHealth) map[entity.Channel]bool {
	out := make(map[entity.Channel]bool, len(health))
	for _, h := range health {
		out[h.Channel] = h.Configured
	}
	return out
}

func TestBuildRegistry_Defaults(t *testing.T) {
	reg := BuildRegistry(config.DefaultProviderConfig(), nopNotices{})

	assert.Equal(t, []entity.Channel{
		entity.ChannelEmail, entity.ChannelSMS, entity.ChannelChatCloud,
		entity.ChannelChatDevice, entity.ChannelInternal,
	}, reg.Channels())
	got := configured(reg.ChannelHealth())
	assert.Equal(t, map[entity.Channel]bool{
		entity.ChannelEmail:      false,
		entity.ChannelSMS:        false,
		entity.ChannelChatCloud:  false,
		entity.ChannelChatDevice: false,
		entity.ChannelInternal:   true,
	}, got)
	assert.True(t, reg.Healthy())
}

func TestBuildRegistry_ChatCloudEnabled(t *testing.T) {
	cfg := config.DefaultProviderConfig()
	cfg.ChatCloud.Enabled = true

	got := configured(BuildRegistry(cfg, nopNotices{}).ChannelHealth())
	assert.True(t, got[entity.ChannelChatCloud])
	assert.False(t, got[entity.ChannelEmail])
}

func TestBuildRegistry_DeviceBridge(t *testing.T) {
	cfg := config.DefaultProviderConfig()
	cfg.ChatDevice.Enabled = true
	cfg.ChatDevice.URL = "http://bridge.local:8080"

	got := configured(BuildRegistry(cfg, nopNotices{}).ChannelHealth())
	assert.True(t, got[entity.ChannelChatDevice])
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("PROVIDERS_CONFIG", "/etc/delivery/providers.yaml")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "s3cret")
	t.Setenv("REDIS_DB", "99")
	t.Setenv("RECEIPT_TTL", "-1h")

	opts := OptionsFromEnv(discardLogger())
	assert.Equal(t, Options{
		ProvidersPath: "/etc/delivery/providers.yaml",
		RedisAddr:     "redis:6379",
		RedisPassword: "s3cret",
		RedisDB:       0,
		ReceiptTTL:    cache.DefaultReceiptTTL,
	}, opts)
}

func TestNew_WithoutRedis(t *testing.T) {
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	a, err := New(context.Background(), discardLogger(), database, Options{
		ProvidersPath: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.Receipts)
	checks := a.ReadinessChecks(database)
	require.Len(t, checks, 1)
	assert.Equal(t, "database", checks[0].Name)
	assert.False(t, checks[0].Optional)
	assert.NotNil(t, a.Delivery)
	assert.NotNil(t, a.Queue)
	assert.NotNil(t, a.Ledger)
	assert.Equal(t, entity.ChannelChatCloud, a.Providers.Ledger.Channel)
	assert.NotNil(t, a.NewWorker(queue.DefaultWorkerConfig()))
}

func TestNew_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	a, err := New(context.Background(), discardLogger(), database, Options{
		ProvidersPath: filepath.Join(t.TempDir(), "missing.yaml"),
		RedisAddr:     mr.Addr(),
		ReceiptTTL:    time.Hour,
	})
	require.NoError(t, err)
	require.NotNil(t, a.Receipts)

	require.NoError(t, a.Receipts.Put(context.Background(), &entity.DeliveryReceipt{
		MessageID:   "m-1",
		DeliveredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}))
	assert.True(t, mr.Exists("receipt:m-1"))

	checks := a.ReadinessChecks(database)
	require.Len(t, checks, 2)
	assert.Equal(t, "receipt_cache", checks[1].Name)
	assert.True(t, checks[1].Optional)
	assert.NoError(t, checks[1].Check(context.Background()))

	mr.Close()
	assert.Error(t, checks[1].Check(context.Background()))
	assert.NoError(t, a.Close())
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	database, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	a, err := New(context.Background(), discardLogger(), database, Options{
		ProvidersPath: filepath.Join(t.TempDir(), "missing.yaml"),
		RedisAddr:     addr,
	})
	require.NoError(t, err)
	assert.Nil(t, a.Receipts)
}

func TestNew_InvalidProviderConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("email: [not a map"), 0o600))

	database, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	_, err = New(context.Background(), discardLogger(), database, Options{ProvidersPath: path})
	assert.Error(t, err)
}
