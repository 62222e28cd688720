package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	result := Do(context.Background(), DefaultConfig(), func() error {
		calls++
		return nil
	})
	if result.Err != nil {
		t.Fatalf("Err = %v, want nil", result.Err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2}
	result := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if result.Err != nil {
		t.Fatalf("Err = %v, want nil after eventual success", result.Err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2}
	permErr := Permanent(errors.New("do not retry me"))
	result := Do(context.Background(), cfg, func() error {
		calls++
		return permErr
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (should not retry a permanent error)", calls)
	}
	if !IsPermanent(result.Err) {
		t.Error("expected the returned error to still be permanent")
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2}
	result := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("always fails")
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if result.Err == nil {
		t.Error("expected a final error after exhausting attempts")
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := Do(ctx, DefaultConfig(), func() error {
		t.Fatal("op should not be called with an already-canceled context")
		return nil
	})
	if result.Err == nil {
		t.Error("expected an error from a canceled context")
	}
}

func TestDoWithValueReturnsOpResult(t *testing.T) {
	value, result := DoWithValue(context.Background(), DefaultConfig(), func() (int, error) {
		return 42, nil
	})
	if result.Err != nil {
		t.Fatalf("Err = %v, want nil", result.Err)
	}
	if value != 42 {
		t.Errorf("value = %d, want 42", value)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("expected a nil error not to be retryable")
	}
	if !IsRetryable(errors.New("transient")) {
		t.Error("expected a plain error to be retryable")
	}
	if IsRetryable(Permanent(errors.New("fatal"))) {
		t.Error("expected a permanent error not to be retryable")
	}
}

func TestExponentialBuildsBackoffConfig(t *testing.T) {
	cfg := Exponential(5, 10*time.Millisecond, time.Second)
	if cfg.MaxAttempts != 5 || cfg.InitialDelay != 10*time.Millisecond || cfg.MaxDelay != time.Second {
		t.Errorf("Exponential() = %+v", cfg)
	}
	if !cfg.Jitter {
		t.Error("expected Exponential to enable jitter")
	}
}
