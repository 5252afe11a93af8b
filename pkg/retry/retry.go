package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0
}

// DefaultConfig returns the startup connection policy:
// 3 retries starting at 250ms, doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// DoWithResult executes fn with exponential backoff until it succeeds, the
// retries are exhausted, or shouldRetry reports the error as permanent.
// A nil shouldRetry retries every error.
func DoWithResult[T any](ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if shouldRetry != nil && !shouldRetry(err) {
			return result, err
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, lastErr
}

// Do is DoWithResult for functions without a result.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, nil, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoIfRetryable retries fn only while IsRetryable reports the error as transient.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, IsRetryable, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryableError is implemented by errors that declare their own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"timed out",
	"timeout",
	"network is unreachable",
	"deadlock",
	"database is locked",
	"server is in script upgrade mode",
	"429",
	"503",
	"rate limit",
	"too many requests",
	"service unavailable",
}

// IsRetryable determines if an error is transient and worth retrying.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
