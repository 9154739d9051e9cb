package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/errors"
)

// RetryConfig controls attempt count and backoff shape.
type RetryConfig struct {
	MaxAttempts     int              `json:"max_attempts"`
	InitialDelay    time.Duration    `json:"initial_delay"`
	MaxDelay        time.Duration    `json:"max_delay"`
	BackoffFactor   float64          `json:"backoff_factor"`
	JitterEnabled   bool             `json:"jitter_enabled"`
	RetryableErrors func(error) bool `json:"-"` // Decides whether an error is worth another attempt
}

// DefaultRetryConfig retries three times with jittered exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
		RetryableErrors: func(err error) bool {
			return errors.IsRetryableError(err)
		},
	}
}

// RetryableFunc is the unit of work passed to RetryWithConfig.
type RetryableFunc func() error

// RetryWithConfig runs fn until it succeeds, the attempts are exhausted, a
// non-retryable error occurs or the context is cancelled. The last error
// seen is returned.
func RetryWithConfig(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.RetryableErrors(err) {
			break
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(config, attempt)):
		}
	}

	return lastErr
}

// backoffDelay is the wait before the next attempt: exponential in the
// attempt number, capped at MaxDelay, with up to 10% jitter.
func backoffDelay(config RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterEnabled {
		if window := int64(delay / 10); window > 0 {
			delay += time.Duration(rand.Int63n(window))
		}
	}

	return delay
}
