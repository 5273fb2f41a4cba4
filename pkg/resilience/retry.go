package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig is an exponential backoff policy. Zero fields take the defaults
// (3 attempts, 100ms doubling up to 10s, ±10% jitter). Retryable, when set,
// ends the loop on errors another attempt cannot fix, such as a line that
// fails to parse.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Retryable      func(err error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

// delay is the pause after the given failed attempt (1-based).
func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < attempt && d < float64(c.MaxDelay); i++ {
		d *= c.Multiplier
	}
	d += d * c.JitterFraction * (2*rand.Float64() - 1)
	switch {
	case d > float64(c.MaxDelay):
		return c.MaxDelay
	case d <= 0:
		return c.InitialDelay
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, the attempts are used up, fn returns an
// error Retryable rejects, or ctx ends.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempt, err)
		}

		wait := cfg.delay(attempt)
		logger.Warn("attempt failed", "attempt", attempt, "error", err, "next_delay", wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: retry abandoned: %w", name, ctx.Err())
		}
	}
}
