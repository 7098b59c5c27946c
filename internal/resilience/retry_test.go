package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errLocked = errors.New("database is locked (5) (SQLITE_BUSY)")

func fastConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls, retries int
	cfg := fastConfig()
	cfg.OnRetry = func(int, error) { retries++ }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errLocked
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d and %d", calls, retries)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return errLocked
	})
	if !errors.Is(err, errLocked) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return errors.New("no such table: MSBA")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, fastConfig(), func(_ context.Context) error {
		calls++
		cancel()
		return errLocked
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call after cancel, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	n, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errLocked
		}
		return 387, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 387 {
		t.Errorf("expected 387, got %d", n)
	}
}

func TestBackoff_Capped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 2 * time.Second}.withDefaults()
	if d := cfg.backoff(0); d != time.Second {
		t.Errorf("attempt 0: got %v", d)
	}
	if d := cfg.backoff(5); d != 2*time.Second {
		t.Errorf("attempt 5: got %v", d)
	}
}
