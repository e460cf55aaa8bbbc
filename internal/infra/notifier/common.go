package notifier

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"guest-delivery/internal/resilience/retry"
)

// maxErrorBody bounds how much of a provider error body ends up in logs and queue rows.
const maxErrorBody = 512

// RateLimitError represents a 429 from a provider.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded (retry after %v)", e.Provider, e.RetryAfter)
}

// Unwrap exposes the status and the provider's wait to retry.WithBackoff.
func (e *RateLimitError) Unwrap() error {
	return &retry.HTTPError{StatusCode: http.StatusTooManyRequests, Message: e.Error(), RetryAfter: e.RetryAfter}
}

// ClientError is a permanent 4xx rejection (bad number, revoked token, unknown template).
type ClientError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s client error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ClientError) Unwrap() error {
	return &retry.HTTPError{StatusCode: e.StatusCode, Message: e.Message}
}

// ServerError is a transient 5xx failure.
type ServerError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s server error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ServerError) Unwrap() error {
	return &retry.HTTPError{StatusCode: e.StatusCode, Message: e.Message}
}

// IsPermanent reports whether err is a rejection that will not succeed on retry.
func IsPermanent(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.StatusCode != http.StatusRequestTimeout
}

// classifyStatus converts a non-2xx status into a typed error.
func classifyStatus(provider string, status int, header http.Header, body []byte) error {
	msg := truncate(strings.TrimSpace(string(body)), maxErrorBody, "...")
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(header)}
	case status >= 400 && status < 500:
		return &ClientError{Provider: provider, StatusCode: status, Message: msg}
	case status >= 500:
		return &ServerError{Provider: provider, StatusCode: status, Message: msg}
	default:
		return fmt.Errorf("%s unexpected status %d: %s", provider, status, msg)
	}
}

// readBody reads at most 64KiB of a response body.
func readBody(resp *http.Response) []byte {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return b
}

func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return time.Second
	}
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

// truncate cuts text to maxLength bytes including suffix.
func truncate(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	cut := maxLength - len(suffix)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + suffix
}
