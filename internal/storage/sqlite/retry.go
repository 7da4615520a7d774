package sqlite

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig controls exponential backoff on a busy database.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	JitterPct  float64 // 0.25 adds up to 25% on top of each delay
}

// DefaultRetryConfig is 5 retries from a 20ms base with 25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  20 * time.Millisecond,
		JitterPct:  0.25,
	}
}

// RetryOnBusy re-runs fn while it fails with a locked or busy database, until
// the retries run out or ctx is done.
func RetryOnBusy(ctx context.Context, fn func() error) error {
	return retryOnBusy(ctx, DefaultRetryConfig(), fn, sleepCtx)
}

func RetryOnBusyWithConfig(ctx context.Context, cfg RetryConfig, fn func() error) error {
	return retryOnBusy(ctx, cfg, fn, sleepCtx)
}

func retryOnBusy(ctx context.Context, cfg RetryConfig, fn func() error, sleep func(context.Context, time.Duration) error) error {
	err := fn()
	for attempt := 0; attempt < cfg.MaxRetries && err != nil && isBusy(err); attempt++ {
		delay := cfg.BaseDelay << attempt
		delay += time.Duration(float64(delay) * rand.Float64() * cfg.JitterPct)
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		err = fn()
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
