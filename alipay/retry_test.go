package alipay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryWithBackoffRetriesTransportErrors(t *testing.T) {
	attempts := 0
	result, err := RetryWithBackoff(
		context.Background(),
		func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("connection reset")
			}
			return "ok", nil
		},
		func(_ string, err error) bool { return err != nil },
		RetryOptions{Idempotent: true, Attempts: 3, Sleep: noSleep},
	)
	if err != nil {
		t.Fatalf("expected retry success, got error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected result ok, got %q", result)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithBackoffRunsNonIdempotentOnce(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(
		context.Background(),
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, errors.New("boom")
		},
		func(_ int, err error) bool { return err != nil },
		RetryOptions{Attempts: 5, Sleep: noSleep},
	)
	if err == nil {
		t.Fatal("expected the operation error")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt for a non-idempotent call, got %d", attempts)
	}
}

func TestRetryWithBackoffRetriesRetryableStatuses(t *testing.T) {
	attempts := 0
	status, err := RetryWithBackoff(
		context.Background(),
		func(ctx context.Context) (int, error) {
			attempts++
			if attempts < 2 {
				return 503, nil
			}
			return 200, nil
		},
		func(status int, err error) bool { return err == nil && ShouldRetryHTTPStatus(status) },
		RetryOptions{Idempotent: true, Attempts: 3, Sleep: noSleep},
	)
	if err != nil {
		t.Fatalf("expected retry success, got error: %v", err)
	}
	if status != 200 {
		t.Fatalf("expected final status 200, got %d", status)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryWithBackoffDoublesDelayUpToMax(t *testing.T) {
	var delays []time.Duration
	_, _ = RetryWithBackoff(
		context.Background(),
		func(ctx context.Context) (int, error) { return 503, nil },
		func(status int, err error) bool { return ShouldRetryHTTPStatus(status) },
		RetryOptions{
			Idempotent: true,
			Attempts:   4,
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   250 * time.Millisecond,
			Jitter:     0.0001,
			Sleep: func(_ context.Context, d time.Duration) error {
				delays = append(delays, d)
				return nil
			},
		},
	)
	if len(delays) != 3 {
		t.Fatalf("expected 3 delays, got %v", delays)
	}
	for i, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond} {
		if diff := delays[i] - want; diff < -time.Millisecond || diff > time.Millisecond {
			t.Fatalf("delay %d: expected about %s, got %s", i, want, delays[i])
		}
	}
}

func TestRetryWithBackoffStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryWithBackoff(
		ctx,
		func(ctx context.Context) (int, error) { return 200, nil },
		nil,
		RetryOptions{Idempotent: true},
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestShouldRetryHTTPStatus(t *testing.T) {
	for _, status := range []int{429, 502, 503, 504} {
		if !ShouldRetryHTTPStatus(status) {
			t.Fatalf("expected status %d to be retryable", status)
		}
	}
	for _, status := range []int{200, 400, 401, 500} {
		if ShouldRetryHTTPStatus(status) {
			t.Fatalf("expected status %d to be final", status)
		}
	}
}
