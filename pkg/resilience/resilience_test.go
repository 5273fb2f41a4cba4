package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("kafka", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("pg", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	cb := NewCircuitBreaker("parse", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return !apperrors.IsParseError(err)
		},
	})
	err := cb.Execute(func() error { return apperrors.ErrMalformedNumber })
	assert.ErrorIs(t, err, apperrors.ErrMalformedNumber)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}

func TestRetrySucceedsEventually(t *testing.T) {
	var calls atomic.Int32
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		if calls.Add(1) < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	var calls int
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	var calls int
	err := Retry(context.Background(), "op", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, apperrors.ErrInvalidInput) },
	}, func() error {
		calls++
		return apperrors.ErrInvalidInput
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 1, calls)
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "op", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		return errBoom
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2, JitterFraction: 0.1}.withDefaults()
	first := cfg.delay(1)
	assert.InDelta(t, float64(time.Second), float64(first), float64(100*time.Millisecond))
	second := cfg.delay(2)
	assert.InDelta(t, float64(2*time.Second), float64(second), float64(200*time.Millisecond))
	assert.Equal(t, 5*time.Second, cfg.delay(10))
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil })
	assert.NoError(t, err)

	err = WithTimeout(context.Background(), 0, "unbounded", func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "cancelled", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}

func TestCircuitBreakerHalfOpenProbeLimit(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("kafka", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, cb.GetState())

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	release := make(chan struct{})
	probing := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(probing)
			<-release
			return errBoom
		})
	}()
	<-probing
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
	close(release)
	assert.ErrorIs(t, <-done, errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
}
