package common

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errPermanent = errors.New("permanent")

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, errPermanent)
		},
	}
}

func TestWithRetry_SuccessFirstAttempt(t *testing.T) {
	attempts := 0
	result, err := WithRetry(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected 'ok', got %q", result)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	attempts := 0
	result, err := WithRetry(context.Background(), fastRetry(3), func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %d", result)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_ExhaustsAllAttempts(t *testing.T) {
	attempts := 0
	var retries []int
	cfg := fastRetry(2)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }

	_, err := WithRetry(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("always failing")
	})
	if err == nil || err.Error() != "always failing" {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", attempts)
	}
	if len(retries) != 2 || retries[0] != 0 || retries[1] != 1 {
		t.Fatalf("unexpected OnRetry calls: %v", retries)
	}
}

func TestWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), fastRetry(5), func(ctx context.Context) (string, error) {
		attempts++
		return "", errPermanent
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	attempts := 0
	_, err := WithRetry(ctx, cfg, func(ctx context.Context) (string, error) {
		attempts++
		cancel()
		return "", errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}
	if got := backoff(cfg, 0); got != time.Second {
		t.Errorf("attempt 0: got %v", got)
	}
	if got := backoff(cfg, 1); got != 2*time.Second {
		t.Errorf("attempt 1: got %v", got)
	}
	if got := backoff(cfg, 5); got != 3*time.Second {
		t.Errorf("attempt 5: got %v", got)
	}
}
