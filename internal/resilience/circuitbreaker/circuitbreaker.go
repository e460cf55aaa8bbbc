// Package circuitbreaker wraps github.com/sony/gobreaker for outbound delivery providers.
// Each external provider owns one breaker so a failing SMS gateway cannot slow down mail delivery.
package circuitbreaker

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"guest-delivery/internal/observability/metrics"
)

// Config tunes one provider breaker. The breaker trips once MinRequests calls were seen in
// the current Interval and the failure ratio reaches FailureThreshold; it probes again
// with MaxRequests calls after Timeout.
type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32

	// IgnoreError, when set, reports errors that say nothing about provider health
	// (a rejected phone number, say). They are returned to the caller but counted as successes.
	IgnoreError func(error) bool
}

// DefaultConfig returns the baseline breaker settings for a provider.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// MailConfig returns configuration for the SMTP relay.
func MailConfig() Config {
	cfg := DefaultConfig("mail")
	cfg.Timeout = 2 * time.Minute
	return cfg
}

// SMSConfig returns configuration for the text-message gateway.
// Gateways tend to fail per-number (invalid destination) rather than globally, so the
// breaker needs more samples before tripping.
func SMSConfig() Config {
	cfg := DefaultConfig("sms")
	cfg.MinRequests = 10
	cfg.FailureThreshold = 0.8
	return cfg
}

// ChatCloudConfig returns configuration for the chat-app cloud API.
func ChatCloudConfig() Config {
	return DefaultConfig("chat-app-cloud")
}

// DeviceBridgeConfig returns configuration for the connected-device bridge.
// A disconnected phone fails every call, so trip quickly and wait longer.
func DeviceBridgeConfig() Config {
	return Config{
		Name:             "chat-app-device",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          5 * time.Minute,
		FailureThreshold: 1.0,
		MinRequests:      3,
	}
}

// CircuitBreaker is a named gobreaker breaker whose transitions are logged and exported.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a new circuit breaker with the given configuration.
func New(cfg Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (cfg.IgnoreError != nil && cfg.IgnoreError(err))
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("provider circuit state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.RecordCircuitState(name, int(to), to.String())
		},
	}

	metrics.ProviderCircuitState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs fn through the breaker. An open breaker returns gobreaker.ErrOpenState
// without calling fn.
func (cb *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return cb.breaker.Execute(fn)
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// Counts returns the request counters of the current generation.
func (cb *CircuitBreaker) Counts() gobreaker.Counts {
	return cb.breaker.Counts()
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

// IsOpenError reports whether err was produced by an open or saturated half-open breaker.
func IsOpenError(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
