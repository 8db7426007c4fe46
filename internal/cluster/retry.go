package cluster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrRetriesExhausted is returned by RetryPolicy.Do once every attempt failed.
var ErrRetriesExhausted = errors.New("maximum retries reached")

// BackoffFunc returns the delay before the next attempt. attempt is the
// 1-based number of the attempt that just failed with err.
type BackoffFunc func(attempt int, err error) time.Duration

// LinearBackoff waits step, 2*step, 3*step... between attempts.
func LinearBackoff(step time.Duration) BackoffFunc {
	return func(attempt int, _ error) time.Duration {
		return step * time.Duration(attempt)
	}
}

// ConstantBackoff always waits step.
func ConstantBackoff(step time.Duration) BackoffFunc {
	return func(int, error) time.Duration {
		return step
	}
}

// RetryPolicy runs an operation up to MaxAttempts times with a backoff
// between attempts. The zero value runs the operation once.
type RetryPolicy struct {
	// Backoff computes the delay after a failed attempt. nil means no delay.
	Backoff BackoffFunc

	// Retryable decides whether err is worth another attempt.
	// nil treats every error as retryable.
	Retryable func(err error) bool

	// Sleep waits for d or until ctx is done. nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// MaxAttempts is the attempt ceiling, values below 1 mean one attempt.
	MaxAttempts int
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempt ceiling is reached. The final error wraps ErrRetriesExhausted and
// the last attempt's error.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt, lastErr)
		}
		log.Printf("attempt %d/%d failed: %v (retrying in %v)", attempt, maxAttempts, lastErr, delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
