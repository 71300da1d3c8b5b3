package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"comicshelf/internal/cache"
	"comicshelf/internal/ratelimit"
	"comicshelf/pkg/config"
	"comicshelf/pkg/models"
)

// FromConfig builds a gated client per configured provider, in config order.
// All providers share one response cache and one limiter; buckets are
// per-provider.
func FromConfig(cfg *config.Config, logger *log.Logger) ([]*Gated, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	limiter := ratelimit.NewLimiter(nil)
	rc := cache.New[*models.ProviderRecord]()
	rc.NegativeTTL = cfg.Cache.NegativeTTL()
	policy := policyFrom(cfg.Retry)
	ttl := cfg.Cache.TTL()

	gated := make([]*Gated, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		var inner Client
		switch strings.ToLower(strings.TrimSpace(pc.Name)) {
		case "comicvine":
			inner = NewComicVine(pc.BaseURL, pc.APIKey)
		case "gcd":
			inner = NewGCD(pc.BaseURL)
		default:
			return nil, fmt.Errorf("unknown provider %q", pc.Name)
		}

		limiter.SetBucket(inner.Name(), ratelimit.Bucket{
			Burst:  pc.RateBurst,
			PerSec: pc.RatePerSec,
		})
		gated = append(gated, Gate(inner, limiter, rc, ttl, policy, logger))
	}
	return gated, nil
}

// Names returns provider names in gated order, which is the reconciliation
// precedence order.
func Names(gated []*Gated) []string {
	names := make([]string, 0, len(gated))
	for _, g := range gated {
		names = append(names, g.Name())
	}
	return names
}

func policyFrom(rc config.RetryConfig) Policy {
	p := DefaultPolicy()
	if rc.BaseDelayMillis > 0 {
		p.BaseDelay = time.Duration(rc.BaseDelayMillis) * time.Millisecond
	}
	if rc.Factor > 1 {
		p.Factor = rc.Factor
	}
	if rc.MaxDelayMillis > 0 {
		p.MaxDelay = time.Duration(rc.MaxDelayMillis) * time.Millisecond
	}
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	return p
}
