package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "open-index", RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	boom := errors.New("corrupt commit")
	err := Retry(context.Background(), "open-index", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		calls++
		return Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryExhausted(t *testing.T) {
	err := Retry(context.Background(), "open-index", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return errors.New("missing")
	})
	assert.ErrorContains(t, err, "all 2 attempts failed")
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})
	fail := func() error { return errors.New("down") }

	assert.Error(t, cb.Execute(fail))
	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	time.Sleep(25 * time.Millisecond)
	v, err := ExecuteValue(cb, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestWithTimeoutValueDeadline(t *testing.T) {
	_, err := WithTimeoutValue(context.Background(), 5*time.Millisecond, "search", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	v, err := WithTimeoutValue(context.Background(), time.Second, "search", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("redis-cache", CircuitBreakerConfig{
		FailureThreshold: 2,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})
	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, cb.GetState())

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("connection refused") })
	}
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, []State{StateOpen}, transitions)
}
