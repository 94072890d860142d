package infra

import (
	"context"
	"errors"
	"time"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// WithRetry executes fn with exponential backoff: the wait before retry n is
// BaseDelay doubled n times, capped at MaxDelay. Errors that are not
// transient (see domain.Retryable) and context cancellation stop the loop
// immediately. The last error is returned after the final attempt.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Coded errors carry their own verdict; anything else is assumed
		// transient.
		var perr *domain.PipelineError
		if errors.As(err, &perr) && !domain.Retryable(err) {
			return err
		}

		// Last attempt, don't wait
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.BaseDelay << attempt
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
