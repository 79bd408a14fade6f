package alipay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 200 * time.Millisecond
	defaultRetryMaxDelay  = 2 * time.Second
	defaultRetryJitter    = 0.2
)

// RetryOptions configures transport retries. Only calls marked idempotent are
// ever attempted more than once.
type RetryOptions struct {
	Attempts   int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
	Idempotent bool
	Sleep      func(ctx context.Context, delay time.Duration) error
}

// ShouldRetryHTTPStatus reports whether a gateway status is worth retrying.
func ShouldRetryHTTPStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RetryWithBackoff runs operation until it succeeds, shouldRetry declines, or
// the attempts are used up. Delays double from BaseDelay up to MaxDelay.
func RetryWithBackoff[T any](
	ctx context.Context,
	operation func(ctx context.Context) (T, error),
	shouldRetry func(result T, err error) bool,
	options RetryOptions,
) (T, error) {
	var zero T
	if operation == nil {
		return zero, errors.New("retry: operation is required")
	}

	attempts := options.Attempts
	if attempts < 1 {
		attempts = defaultRetryAttempts
	}
	if !options.Idempotent {
		attempts = 1
	}
	if shouldRetry == nil {
		shouldRetry = func(T, error) bool { return false }
	}

	delay := max(options.BaseDelay, 0)
	maxDelay := max(options.MaxDelay, delay)
	jitter := options.Jitter
	if jitter <= 0 {
		jitter = defaultRetryJitter
	}
	sleep := options.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := operation(ctx)
		if attempt >= attempts || !shouldRetry(result, err) {
			return result, err
		}
		if err := sleep(ctx, withJitter(delay, jitter)); err != nil {
			return zero, fmt.Errorf("retry sleep interrupted: %w", err)
		}
		delay = min(delay*2, maxDelay)
	}
}

func withJitter(base time.Duration, jitter float64) time.Duration {
	window := int64(float64(base) * jitter)
	if window <= 0 {
		return base
	}
	adjusted := base + time.Duration(rand.Int63n(2*window+1)-window)
	if adjusted <= 0 {
		return base
	}
	return adjusted
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
