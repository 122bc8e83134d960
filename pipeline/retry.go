package pipeline

import (
	"context"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
)

// retryPolicy decides whether a failed book is retried and waits between attempts.
type retryPolicy struct {
	threshold int
	base      time.Duration
	max       time.Duration
	metrics   *scraper.Metrics
	sleep     func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(cfg *config.Config, metrics *scraper.Metrics) *retryPolicy {
	return &retryPolicy{
		threshold: cfg.FailureThreshold,
		base:      cfg.RetryBackoff,
		max:       cfg.RetryBackoffMax,
		metrics:   metrics,
		sleep:     sleepContext,
	}
}

// exhausted reports whether failures has passed the threshold.
func (rp *retryPolicy) exhausted(failures int) bool {
	return failures > rp.threshold
}

// wait blocks for the backoff of the given attempt.
func (rp *retryPolicy) wait(ctx context.Context, attempt int) error {
	rp.metrics.IncRetries()
	return rp.sleep(ctx, rp.backoff(attempt))
}

func (rp *retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if rp.base <= 0 {
		return 0
	}
	// Cap the shift so large attempt counts cannot overflow.
	if attempt > 30 {
		attempt = 30
	}

	delay := rp.base * time.Duration(1<<(attempt-1))
	if rp.max > 0 && delay > rp.max {
		delay = rp.max
	}
	return delay
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
