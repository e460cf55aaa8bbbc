// Package config loads process settings from environment variables.
//
// Loading is fail-open: an unset variable yields the default silently, and a malformed or
// out-of-range value yields the default plus a warning. Callers log the warning and record
// it on ConfigMetrics, so a bad deployment value degrades to a known-good setting instead of
// stopping the delivery worker.
//
//	r := config.LoadDuration("QUEUE_BASE_BACKOFF", 30*time.Second, config.ValidatePositiveDuration)
//	if r.FallbackApplied {
//	    logger.Warn("config fallback", slog.String("warning", r.Warning))
//	}
//	backoff := r.Value
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadResult is the outcome of loading one setting.
type LoadResult[T any] struct {
	Key             string
	Value           T
	Warning         string
	FallbackApplied bool
}

func fallback[T any](key, raw string, def T, reason error) LoadResult[T] {
	return LoadResult[T]{
		Key:             key,
		Value:           def,
		Warning:         fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'", key, raw, reason, def),
		FallbackApplied: true,
	}
}

// LoadString reads key, validating non-empty values with validate (may be nil).
func LoadString(key, def string, validate func(string) error) LoadResult[string] {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return LoadResult[string]{Key: key, Value: def}
	}
	if validate != nil {
		if err := validate(raw); err != nil {
			return fallback(key, raw, def, err)
		}
	}
	return LoadResult[string]{Key: key, Value: raw}
}

// LoadInt reads key as a base-10 integer.
func LoadInt(key string, def int, validate func(int) error) LoadResult[int] {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return LoadResult[int]{Key: key, Value: def}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback(key, raw, def, fmt.Errorf("invalid integer format"))
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return fallback(key, raw, def, err)
		}
	}
	return LoadResult[int]{Key: key, Value: v}
}

// LoadDuration reads key with time.ParseDuration ("30s", "15m", "1h").
func LoadDuration(key string, def time.Duration, validate func(time.Duration) error) LoadResult[time.Duration] {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return LoadResult[time.Duration]{Key: key, Value: def}
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback(key, raw, def, fmt.Errorf("invalid duration format"))
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return fallback(key, raw, def, err)
		}
	}
	return LoadResult[time.Duration]{Key: key, Value: v}
}

// LoadBool reads key with strconv.ParseBool.
func LoadBool(key string, def bool) LoadResult[bool] {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return LoadResult[bool]{Key: key, Value: def}
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback(key, raw, def, fmt.Errorf("expected 'true' or 'false'"))
	}
	return LoadResult[bool]{Key: key, Value: v}
}

// Secret returns the value of the variable named by key, or "" when key is empty.
// Provider YAML names the variables holding credentials instead of embedding them.
func Secret(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}
