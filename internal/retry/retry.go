// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config bounds a retry loop. MaxAttempts below 1 means a single attempt.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // linear growth: attempt * Delay

	// OnRetry, when set, is called before sleeping after a failed attempt.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, attempts run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		delay := cfg.Delay
		if cfg.Backoff {
			delay = time.Duration(attempt) * cfg.Delay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if attempts == 1 {
		return err
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
