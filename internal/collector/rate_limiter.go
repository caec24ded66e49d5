package collector

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter paces GitHub API calls against the budget the API itself
// reports.
type RateLimiter interface {
	Wait(ctx context.Context) error
	UpdateLimit(remaining int, resetTime time.Time)
}

const (
	// lowWatermark leaves headroom for other consumers of the same
	// token (the scan workflow shares it with the listing).
	lowWatermark = 10
	// minCallDelay spaces consecutive requests.
	minCallDelay = 100 * time.Millisecond
)

// githubRateLimiter holds the budget last reported via UpdateLimit.
// Until the first response arrives the budget is unknown and only the
// minimum inter-request delay applies.
type githubRateLimiter struct {
	mu        sync.Mutex
	remaining int // -1 when unknown
	resetTime time.Time
	lastCall  time.Time
}

// NewRateLimiter creates a rate limiter with an unknown budget.
func NewRateLimiter() RateLimiter {
	return &githubRateLimiter{remaining: -1}
}

// Wait blocks until another API call is safe: past the reported reset
// when the budget is nearly spent, and at least minCallDelay after the
// previous call.
func (r *githubRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.remaining >= 0 && r.remaining <= lowWatermark {
		if wait := time.Until(r.resetTime); wait > 0 {
			fmt.Printf("  Rate limit low (%d remaining), waiting %v until reset\n",
				r.remaining, wait.Round(time.Second))
			if err := r.sleepLocked(ctx, wait); err != nil {
				return err
			}
		}
		// The budget is unknown again until the next response
		// reports it.
		r.remaining = -1
	}

	if elapsed := time.Since(r.lastCall); elapsed < minCallDelay {
		if err := r.sleepLocked(ctx, minCallDelay-elapsed); err != nil {
			return err
		}
	}
	r.lastCall = time.Now()
	return nil
}

// UpdateLimit records the budget from the latest API response headers.
func (r *githubRateLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetTime = resetTime
}

// sleepLocked releases the mutex for the duration of the sleep and
// reacquires it before returning.
func (r *githubRateLimiter) sleepLocked(ctx context.Context, d time.Duration) error {
	r.mu.Unlock()
	defer r.mu.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
