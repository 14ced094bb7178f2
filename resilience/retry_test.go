package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kbukum/flowkit/errors"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, BackoffFactor: 2.0}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.Transient("read", stderrors.New("connection reset"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("expected ok after 3 calls, got %q after %d", result, calls)
	}
}

func TestRetry_StopsOnFatalError(t *testing.T) {
	calls := 0
	fatal := errors.Permanent("write", stderrors.New("schema mismatch"))
	_, err := Retry(context.Background(), fastRetry(5), func() (int, error) {
		calls++
		return 0, fatal
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !stderrors.Is(err, fatal) {
		t.Errorf("expected the fatal error back, got %v", err)
	}
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := RetryFunc(context.Background(), fastRetry(4), func() error {
		calls++
		return errors.Transient("read", stderrors.New("busy"))
	})
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if errors.ClassOf(err) != errors.ClassTransient {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestRetry_PlainErrorsAreNotRetried(t *testing.T) {
	calls := 0
	_ = RetryFunc(context.Background(), fastRetry(3), func() error {
		calls++
		return stderrors.New("boom")
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RespectsContext(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: 100 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	calls := 0
	err := RetryFunc(ctx, cfg, func() error {
		calls++
		return errors.Transient("read", nil)
	})
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if calls >= 10 {
		t.Errorf("expected fewer than 10 calls, got %d", calls)
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}
	_ = RetryFunc(context.Background(), cfg, func() error {
		return errors.Transient("read", nil)
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected attempts [1 2], got %v", attempts)
	}
}

func TestRetryConfig_Merge(t *testing.T) {
	base := DefaultRetryConfig()
	merged := base.Merge(RetryConfig{MaxAttempts: 7, MaxBackoff: time.Second})
	if merged.MaxAttempts != 7 || merged.MaxBackoff != time.Second {
		t.Errorf("override not applied: %+v", merged)
	}
	if merged.InitialBackoff != base.InitialBackoff || merged.BackoffFactor != base.BackoffFactor {
		t.Errorf("base fields lost: %+v", merged)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, cfg); got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}
