// package provider talks to external comic catalog services. Each concrete
// client maps its provider's wire format into the internal ProviderRecord
// shape; nothing outside this package sees provider-specific fields.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"comicshelf/internal/cache"
	"comicshelf/internal/ratelimit"
	"comicshelf/pkg/models"
)

// Client is implemented by each external catalog provider.
//
// FetchIssue fails with shared.ErrNotFound when the provider does not know
// the issue, shared.ErrRateLimited when the provider throttled the call, and
// shared.ErrUnavailable / shared.ErrTimeout for transient conditions.
type Client interface {
	Name() string
	FetchIssue(ctx context.Context, seriesKey string, number models.IssueNumber) (*models.ProviderRecord, error)
}

// RecordCache is the response cache specialization used by gated clients.
type RecordCache = cache.Cache[*models.ProviderRecord]

// Gated wraps a raw client with admission control, response caching and
// retry. This is the form the fetch orchestrator consumes.
type Gated struct {
	inner   Client
	limiter *ratelimit.Limiter
	cache   *RecordCache
	ttl     time.Duration
	policy  Policy
	log     *log.Logger

	// CallTimeout bounds one whole upstream fetch including admission wait,
	// retries and backoff. It applies to the shared flight, not to individual
	// attached callers, so a slow caller set cannot starve the limiter.
	CallTimeout time.Duration
}

// Gate builds a Gated client. The cache may be shared across providers; keys
// are namespaced by provider name.
func Gate(inner Client, limiter *ratelimit.Limiter, c *RecordCache, ttl time.Duration, policy Policy, logger *log.Logger) *Gated {
	return &Gated{
		inner:   inner,
		limiter: limiter,
		cache:   c,
		ttl:     ttl,
		policy:  policy,
		log:     logger.With("provider", inner.Name()),
	}
}

func (g *Gated) Name() string { return g.inner.Name() }

// CacheKey returns the response-cache key for one issue fetch.
func (g *Gated) CacheKey(seriesKey string, number models.IssueNumber) string {
	return fmt.Sprintf("%s/%s/%s", g.inner.Name(), seriesKey, number)
}

// Invalidate drops the cached response for one issue, forcing the next fetch
// to hit upstream. Used for user-initiated refreshes.
func (g *Gated) Invalidate(seriesKey string, number models.IssueNumber) {
	g.cache.Invalidate(g.CacheKey(seriesKey, number))
}

// FetchIssue serves from cache when possible; otherwise it acquires a rate
// limiter token before every upstream attempt and retries transient failures
// with exponential backoff. NotFound is terminal and never retried.
func (g *Gated) FetchIssue(ctx context.Context, seriesKey string, number models.IssueNumber) (*models.ProviderRecord, error) {
	key := g.CacheKey(seriesKey, number)

	return g.cache.GetOrFetch(ctx, key, g.ttl, func(fctx context.Context) (*models.ProviderRecord, error) {
		timeout := g.CallTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		fctx, cancel := context.WithTimeout(fctx, timeout)
		defer cancel()

		var rec *models.ProviderRecord

		retr := NewRetrier(g.policy)
		err := retr.Do(fctx, func(ctx context.Context) error {
			if err := g.limiter.Acquire(ctx, g.inner.Name()); err != nil {
				return err
			}
			var err error
			rec, err = g.inner.FetchIssue(ctx, seriesKey, number)
			return err
		})
		if err != nil {
			g.log.Warn("fetch failed", "series", seriesKey, "issue", number,
				"attempts", retr.Attempts(), "err", err)
			return nil, err
		}

		g.log.Debug("fetched", "series", seriesKey, "issue", number,
			"attempts", retr.Attempts())
		return rec, nil
	})
}
