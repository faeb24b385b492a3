package retry

import (
	"context"
	"math"
	"time"

	"github.com/baechuer/medimg-identity/internal/domain"
)

// HardCap bounds MaxAttempts regardless of configuration.
const HardCap = 3

// Config holds retry configuration
type Config struct {
	MaxAttempts int // total attempts, including the first
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c Config) attempts() int {
	switch {
	case c.MaxAttempts < 1:
		return 1
	case c.MaxAttempts > HardCap:
		return HardCap
	default:
		return c.MaxAttempts
	}
}

// CalculateDelay calculates exponential backoff delay
func CalculateDelay(attempt int, cfg Config) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempts run out. The last error is returned unchanged so callers can
// still classify it.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	n := cfg.attempts()

	for attempt := 0; attempt < n; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(CalculateDelay(attempt-1, cfg)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return err
		}
	}
	return lastErr
}
