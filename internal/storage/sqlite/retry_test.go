package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetrySucceedsOnTransientLock(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		if calls <= 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	}, noSleep)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestRetryNoRetryOnOtherErrors(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return errors.New("UNIQUE constraint failed")
	}, noSleep)
	if err == nil || calls != 1 {
		t.Fatalf("expected single failed call, got calls=%d err=%v", calls, err)
	}
}

func TestRetryExhaustsAllAttempts(t *testing.T) {
	cfg := DefaultRetryConfig()
	calls := 0
	err := retryOnBusy(context.Background(), cfg, func() error {
		calls++
		return errors.New("database is locked")
	}, noSleep)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 1+cfg.MaxRetries {
		t.Fatalf("expected %d calls, got %d", 1+cfg.MaxRetries, calls)
	}
}

func TestRetryStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryOnBusy(ctx, func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one call before ctx abort, got calls=%d err=%v", calls, err)
	}
}

func TestRetryBackoffWithJitterBounds(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 4, BaseDelay: 10 * time.Millisecond, JitterPct: 0.5}
	var sleeps []time.Duration
	_ = retryOnBusy(context.Background(), cfg, func() error {
		return errors.New("database is locked")
	}, func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	})

	if len(sleeps) != cfg.MaxRetries {
		t.Fatalf("expected %d sleeps, got %d", cfg.MaxRetries, len(sleeps))
	}
	for i, d := range sleeps {
		base := cfg.BaseDelay << i
		max := base + time.Duration(float64(base)*cfg.JitterPct)
		if d < base || d > max {
			t.Errorf("sleep[%d] = %v, want [%v, %v]", i, d, base, max)
		}
	}
}
