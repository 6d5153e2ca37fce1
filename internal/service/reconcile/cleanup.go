package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/josh-kwaku/anchor-gateway/internal/logging"
)

type expiredCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// IdempotencyCleanupJob drops cached responses past their expiry.
type IdempotencyCleanupJob struct {
	cache    expiredCleaner
	interval time.Duration
}

func NewIdempotencyCleanupJob(cache expiredCleaner, interval time.Duration) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{cache: cache, interval: interval}
}

func (j *IdempotencyCleanupJob) Name() string { return "idempotency_cleanup" }
func (j *IdempotencyCleanupJob) Interval() time.Duration { return j.interval }

func (j *IdempotencyCleanupJob) Run(ctx context.Context) error {
	n, err := j.cache.CleanExpired(ctx)
	if err != nil {
		return fmt.Errorf("Run: %w", err)
	}
	if n > 0 {
		logging.FromContext(ctx).Info("expired idempotency entries removed", "count", n)
	}
	return nil
}
