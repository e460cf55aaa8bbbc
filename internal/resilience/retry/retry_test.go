package retry

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:    attempts,
		InitialDelay:   5 * time.Millisecond,
		MaxDelay:       20 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func TestWithBackoff_SucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 2 {
			return &HTTPError{StatusCode: 503, Message: "gateway busy"}
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestWithBackoff_StopsOnPermanentFailure(t *testing.T) {
	attempts := 0
	rejected := &HTTPError{StatusCode: 400, Message: "invalid destination"}

	err := WithBackoff(context.Background(), fastConfig(3), func() error {
		attempts++
		return rejected
	})

	if !errors.Is(err, rejected) {
		t.Errorf("expected the provider error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithBackoff_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(2), func() error {
		attempts++
		return syscall.ECONNRESET
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Errorf("expected wrapped ECONNRESET, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.InitialDelay = time.Second

	err := WithBackoff(ctx, cfg, func() error {
		cancel()
		return &HTTPError{StatusCode: 500, Message: "boom"}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"500", &HTTPError{StatusCode: 500}, true},
		{"503", &HTTPError{StatusCode: 503}, true},
		{"429", &HTTPError{StatusCode: 429}, true},
		{"408", &HTTPError{StatusCode: 408}, true},
		{"400", &HTTPError{StatusCode: 400}, false},
		{"401", &HTTPError{StatusCode: 401}, false},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"net unreachable", syscall.ENETUNREACH, true},
		{"plain", errors.New("template rejected"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestExponential(t *testing.T) {
	base := 30 * time.Second
	max := 10 * time.Minute

	tests := []struct {
		n    int
		want time.Duration
	}{
		{-1, 30 * time.Second},
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{40, 10 * time.Minute},
	}

	for _, tt := range tests {
		if got := Exponential(base, max, tt.n); got != tt.want {
			t.Errorf("Exponential(%v, %v, %d) = %v, want %v", base, max, tt.n, got, tt.want)
		}
	}
}

func TestExponential_ZeroBase(t *testing.T) {
	if got := Exponential(0, time.Minute, 3); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestProviderConfig(t *testing.T) {
	cfg := ProviderConfig()
	if cfg.MaxAttempts != 2 {
		t.Errorf("expected MaxAttempts=2, got %d", cfg.MaxAttempts)
	}
	if cfg.MaxDelay > 5*time.Second {
		t.Errorf("provider retries must stay short, got MaxDelay=%v", cfg.MaxDelay)
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: 502, Message: "bad gateway"}
	if err.Error() != "HTTP 502: bad gateway" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestAddJitter_Bounds(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 20; i++ {
		got := addJitter(d, 0.2)
		if got < d || got > 120*time.Millisecond {
			t.Fatalf("jitter out of bounds: %v", got)
		}
	}
	if addJitter(d, 0) != d {
		t.Error("zero fraction must not add jitter")
	}
}

func TestWithBackoff_HonoursRetryAfter(t *testing.T) {
	cfg := fastConfig(2)
	cfg.MaxDelay = 50 * time.Millisecond
	attempts := 0
	start := time.Now()

	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return &HTTPError{StatusCode: 429, Message: "slow down", RetryAfter: 30 * time.Millisecond}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected to wait the provider's Retry-After, waited %v", elapsed)
	}
}

func TestWithBackoff_RetryAfterBeyondBudget(t *testing.T) {
	attempts := 0
	limited := &HTTPError{StatusCode: 429, Message: "slow down", RetryAfter: time.Minute}

	err := WithBackoff(context.Background(), fastConfig(3), func() error {
		attempts++
		return limited
	})

	if !errors.Is(err, ErrRetryAfterTooLong) {
		t.Errorf("expected ErrRetryAfterTooLong, got %v", err)
	}
	if !errors.Is(err, limited) {
		t.Errorf("expected the provider error to stay wrapped, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}
