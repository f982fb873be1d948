package engine

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of whole batches on transient transaction
// failures (serialization conflicts, deadlocks). With business-key
// partitioning those are nearly impossible, so the default keeps a single
// retry as a safety net rather than a crutch.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy allows one retry with 100ms incremental backoff.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 1, Backoff: 100 * time.Millisecond}

// Wait sleeps for attempt*Backoff (attempt is 1-based), honoring ctx.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt) * p.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
