// package ratelimit gates outbound provider calls with per-provider token
// buckets. Providers publish different limits, so each gets its own bucket;
// there is no global lock across providers.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"comicshelf/internal/shared"
)

// Bucket describes one provider's token bucket: capacity Burst, continuous
// refill at PerSec tokens per second.
type Bucket struct {
	Burst  int
	PerSec float64
}

// Limiter admits outbound calls per provider. Safe for concurrent use.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// NewLimiter creates a limiter with the given per-provider buckets.
func NewLimiter(buckets map[string]Bucket) *Limiter {
	l := &Limiter{buckets: make(map[string]*rate.Limiter, len(buckets))}
	for name, b := range buckets {
		burst := b.Burst
		if burst <= 0 {
			burst = 1
		}
		l.buckets[name] = rate.NewLimiter(rate.Limit(b.PerSec), burst)
	}
	return l
}

// Acquire blocks until a token is available for the provider or ctx expires.
// Deadline exhaustion fails with [shared.ErrAdmissionDeadline], which is
// distinct from upstream throttling ([shared.ErrRateLimited]).
func (l *Limiter) Acquire(ctx context.Context, provider string) error {
	l.mu.RLock()
	lim, ok := l.buckets[provider]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ratelimit: unknown provider %q", provider)
	}

	if err := lim.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Wait fails immediately when the deadline cannot be met, and on
		// deadline expiry while queued. Both are local admission exhaustion.
		return fmt.Errorf("%w: provider %s: %v", shared.ErrAdmissionDeadline, provider, err)
	}
	return nil
}

// Allow reports whether a token is immediately available without consuming
// the caller's deadline. Used by tests and the readiness probe.
func (l *Limiter) Allow(provider string) bool {
	l.mu.RLock()
	lim, ok := l.buckets[provider]
	l.mu.RUnlock()
	if !ok {
		return false
	}
	return lim.Allow()
}

// SetBucket installs or replaces a provider's bucket at runtime.
func (l *Limiter) SetBucket(provider string, b Bucket) {
	burst := b.Burst
	if burst <= 0 {
		burst = 1
	}
	l.mu.Lock()
	l.buckets[provider] = rate.NewLimiter(rate.Limit(b.PerSec), burst)
	l.mu.Unlock()
}
