package widget

import (
	"context"
	"time"
)

// RetryPolicy bounds how submissions are retried. Retries is the number of
// attempts after the first; Delay is the fixed wait before each retry.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// DefaultRetryPolicy retries once after one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 1, Delay: time.Second}
}

// Attempts is the total number of submissions tried, never less than one.
func (p RetryPolicy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
