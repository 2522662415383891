package ai

import (
	"context"
	"math/rand"
	"time"
)

// retryPolicy runs provider attempts sequentially. An attempt's full
// resolution, including its backoff delay, completes before the next attempt
// begins.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration

	// injection points for tests
	sleep func(time.Duration)
	rand  func() float64
}

func newRetryPolicy(maxAttempts int, baseDelay, timeout time.Duration) *retryPolicy {
	return &retryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		timeout:     timeout,
		sleep:       time.Sleep,
		rand:        rand.Float64,
	}
}

// backoffDelay is the wait after a failed attempt (1-based), inflated by up
// to 10% jitter: delay before attempt k = base * 2^(k-2) for k >= 2.
func (p *retryPolicy) backoffDelay(attempt int) time.Duration {
	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(p.rand() * 0.1 * float64(delay))
	return delay + jitter
}

// do runs fn up to maxAttempts times. Each attempt gets its own timeout
// context; cancellation is best-effort client-side only. Returns the result
// of the first successful attempt, the attempt count, or the final error.
func (p *retryPolicy) do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		result, err := fn(attemptCtx)
		cancel()

		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if attempt == p.maxAttempts || !retryable(err) {
			return "", attempt, err
		}
		p.sleep(p.backoffDelay(attempt))
	}
	return "", p.maxAttempts, lastErr
}
