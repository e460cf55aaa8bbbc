// Package retry provides bounded retries with exponential backoff and jitter for
// transport calls, plus the deterministic backoff schedule used for queued redelivery.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"guest-delivery/internal/observability/logging"
)

// Config bounds the in-call retries of one provider request.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// MaxDelay caps every wait, including a provider's Retry-After.
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

// ProviderConfig returns the settings for a single outbound provider call. The queue
// worker owns long-horizon retries, so an attempt fails fast and the row goes to RETRY.
func ProviderConfig() Config {
	return Config{
		MaxAttempts:    2,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// Exponential returns base * 2^n capped at limit. Negative n is treated as zero.
// It is deterministic (no jitter) so persisted schedules such as next_retry_at are reproducible.
func Exponential(base, limit time.Duration, n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < n; i++ {
		if limit > 0 && d >= limit/2 {
			return limit
		}
		d *= 2
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

// ErrRetryAfterTooLong is returned when a provider asks to wait longer than Config.MaxDelay.
var ErrRetryAfterTooLong = errors.New("provider retry-after exceeds the in-call budget")

// WithBackoff calls fn until it succeeds, returns a non-retryable error, or MaxAttempts is
// reached. A Retry-After carried by an HTTPError replaces the computed delay; when it is
// longer than MaxDelay the call gives up at once so the queue can reschedule it.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	logger := logging.FromContext(ctx)
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("provider call succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if ra := retryAfter(lastErr); ra > 0 {
			if cfg.MaxDelay > 0 && ra > cfg.MaxDelay {
				return fmt.Errorf("%w (%v): %w", ErrRetryAfterTooLong, ra, lastErr)
			}
			wait = ra
		}

		logger.Warn("provider call failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", wait),
			slog.String("error", logging.SanitizeError(lastErr)))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}

		delay = nextDelay(delay, cfg)
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

func nextDelay(d time.Duration, cfg Config) time.Duration {
	d = time.Duration(float64(d) * cfg.Multiplier)
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return addJitter(d, cfg.JitterFraction)
}

// IsRetryable reports whether err is a transient transport failure: a network timeout, a
// refused or reset connection, or an HTTP 408, 429 or 5xx. Context errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500 && httpErr.StatusCode < 600:
			return true
		case httpErr.StatusCode == http.StatusTooManyRequests, httpErr.StatusCode == http.StatusRequestTimeout:
			return true
		}
	}
	return false
}

// HTTPError is the status view of a provider failure. RetryAfter is set from the
// provider's Retry-After header when it sent one.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func retryAfter(err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}

// addJitter adds up to jitterFraction of duration on top of it.
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- backoff jitter does not need cryptographic randomness
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}
