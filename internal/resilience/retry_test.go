package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/resilience"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := resilience.DefaultRetryPolicy()
	assert.Equal(t, uint64(1), p.MaxRetries)
	assert.Equal(t, 5*time.Second, p.Delay)
}

func TestRetryPolicy_SucceedsFirstTime(t *testing.T) {
	p := resilience.RetryPolicy{MaxRetries: 1, Delay: time.Millisecond}

	attempts, err := p.Do(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_RetriesExactlyOnce(t *testing.T) {
	p := resilience.RetryPolicy{MaxRetries: 1, Delay: 20 * time.Millisecond}

	var calls []time.Time
	start := time.Now()
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls = append(calls, time.Now())
		return assert.AnError
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrRetriesExhausted)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, attempts)
	require.Len(t, calls, 2)
	assert.GreaterOrEqual(t, calls[1].Sub(start), 20*time.Millisecond)
}

func TestRetryPolicy_SecondAttemptSucceeds(t *testing.T) {
	p := resilience.RetryPolicy{MaxRetries: 1, Delay: time.Millisecond}

	n := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		n++
		if n == 1 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryPolicy_PermanentErrorStops(t *testing.T) {
	p := resilience.RetryPolicy{MaxRetries: 3, Delay: time.Millisecond}
	errConfig := errors.New("missing secret")

	attempts, err := p.Do(context.Background(), func(context.Context) error {
		return resilience.Permanent(errConfig)
	})
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, errConfig)
	assert.NotErrorIs(t, err, resilience.ErrRetriesExhausted)
}

func TestRetryPolicy_ContextCancelledDuringDelay(t *testing.T) {
	p := resilience.RetryPolicy{MaxRetries: 1, Delay: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	attempts, err := p.Do(ctx, func(context.Context) error { return assert.AnError })
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Second)
}
