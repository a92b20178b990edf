package quote

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff and full
// jitter: the sleep before retry n is drawn uniformly from [0, backoff(n)].
// The zero value performs no retries.
type RetryPolicy struct {
	MaxRetries int              // retries after the first attempt
	BaseDelay  time.Duration    // first backoff step
	Multiplier float64          // backoff growth per retry
	MaxDelay   time.Duration    // backoff cap, 0 means uncapped
	Retryable  func(error) bool // defaults to IsTransient
}

// DefaultRetryPolicy mirrors the production fetch settings: five retries,
// 1s base doubling up to 16s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		Multiplier: 2,
		MaxDelay:   16 * time.Second,
	}
}

// backoff returns the un-jittered exponential delay before retry n (0-based).
func (p RetryPolicy) backoff(n int) time.Duration {
	factor := p.Multiplier
	if factor < 1 {
		factor = 1
	}
	wait := p.BaseDelay
	for i := 0; i < n; i++ {
		next := time.Duration(float64(wait) * factor)
		if p.MaxDelay > 0 && next > p.MaxDelay {
			wait = p.MaxDelay
			break
		}
		wait = next
	}
	return wait
}

// delay returns the jittered sleep before retry n.
func (p RetryPolicy) delay(n int) time.Duration {
	return time.Duration(rand.Float64() * float64(p.backoff(n)))
}

// Do runs fn until it succeeds, fails permanently, the retry budget is
// spent, or ctx is done. It returns the number of retries performed.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) (int, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) || attempt >= p.MaxRetries {
			return attempt, err
		}
		select {
		case <-time.After(p.delay(attempt)):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
}
