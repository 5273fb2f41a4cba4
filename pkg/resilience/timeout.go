package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// WithTimeout runs fn under a deadline of timeout (none when timeout <= 0).
// fn must honour ctx. When the deadline, and not the parent, stops fn, the
// error matches both apperrors.ErrTimeout and context.DeadlineExceeded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(bounded)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if errors.Is(bounded.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %v: %w", name, apperrors.ErrTimeout, timeout, err)
	}
	return err
}
