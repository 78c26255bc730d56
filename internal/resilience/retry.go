package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetriesExhausted wraps the final error once every attempt has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy retries an operation a bounded number of times with a fixed
// delay between attempts.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries uint64

	// Delay is the fixed pause before each retry.
	Delay time.Duration
}

// DefaultRetryPolicy retries once after five seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Delay: 5 * time.Second}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the retries are
// used up or ctx is done. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	attempts := 0
	permanent := false
	operation := func() error {
		attempts++
		err := op(ctx)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
		}
		return err
	}

	var bo backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	bo = backoff.WithMaxRetries(bo, p.MaxRetries)
	bo = backoff.WithContext(bo, ctx)

	err := backoff.Retry(operation, bo)
	if err == nil {
		return attempts, nil
	}

	if permanent || ctx.Err() != nil {
		return attempts, err
	}
	return attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
}
