// Package retry provides the bounded backoff policy shared by every upstream call.
package retry

import (
	"context"
	"time"
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy retries an operation up to MaxAttempts times in total. Delay chooses
// the pause before the next attempt from the failed attempt's error, so rate
// limits and network failures can back off differently.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int, err error) time.Duration
	Retryable   func(err error) bool
	Sleep       Sleeper
	OnRetry     func(attempt int, err error, wait time.Duration)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}

		var wait time.Duration
		if p.Delay != nil {
			wait = p.Delay(attempt, err)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return err
		}
	}
}

// Constant returns a Delay that always waits d.
func Constant(d time.Duration) func(int, error) time.Duration {
	return func(int, error) time.Duration {
		return d
	}
}
