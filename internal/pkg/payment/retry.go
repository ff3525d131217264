package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryConfig defines the bounded backoff applied to transient provider
// failures. Only ErrProviderUnavailable is retried; every other error is
// surfaced immediately.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig keeps the total wait well under typical provider
// redirect timeouts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
	}
}

// WithRetry executes op with exponential backoff while it keeps failing with
// ErrProviderUnavailable. The final error is returned once attempts exhaust.
func WithRetry(ctx context.Context, config RetryConfig, op func() error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt-1)))
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := op()
		if err == nil {
			return nil
		}

		lastErr = err
		if !errors.Is(err, ErrProviderUnavailable) {
			return err
		}
	}

	return fmt.Errorf("provider call failed after %d attempts: %w", config.MaxAttempts, lastErr)
}
