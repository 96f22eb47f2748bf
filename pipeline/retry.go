package pipeline

import (
	"context"
	"time"
)

// RetryConfig holds retry configuration for sink writes.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible retry defaults for sink writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        15 * time.Second,
	}
}

// withRetry runs fn up to MaxAttempts times with exponential backoff,
// respecting context cancellation between attempts. Permanent errors
// (reported by permanent) are returned immediately.
func withRetry(ctx context.Context, cfg RetryConfig, permanent func(error) bool, fn func() error) error {
	backoff := cfg.BackoffBase
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || (permanent != nil && permanent(err)) || attempt >= cfg.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}
