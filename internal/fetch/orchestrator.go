// package fetch coordinates concurrent issue fetches across all configured
// providers under one bounded worker pool.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"comicshelf/internal/provider"
	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

// Result is the outcome of one multi-provider fetch. Records holds every
// provider that succeeded; Errors holds one wrapped error per provider that
// failed. Partial success is a valid outcome.
type Result struct {
	Records []*models.ProviderRecord
	Errors  []error
}

// Orchestrator fans one issue fetch out to every provider. The worker pool
// is global across calls and sized independently of the provider list, so a
// long provider roster cannot unbound concurrency.
type Orchestrator struct {
	providers []*provider.Gated
	sem       chan struct{}
	deadline  time.Duration
	log       *log.Logger
}

// New creates an orchestrator over the given gated providers.
func New(providers []*provider.Gated, workers int, deadline time.Duration, logger *log.Logger) *Orchestrator {
	if workers <= 0 {
		workers = 8
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Orchestrator{
		providers: providers,
		sem:       make(chan struct{}, workers),
		deadline:  deadline,
		log:       logger,
	}
}

// Providers returns the configured gated providers in precedence order.
func (o *Orchestrator) Providers() []*provider.Gated { return o.providers }

// Invalidate drops every provider's cached response for one issue.
func (o *Orchestrator) Invalidate(seriesKey string, number models.IssueNumber) {
	for _, p := range o.providers {
		p.Invalidate(seriesKey, number)
	}
}

type providerResult struct {
	rec *models.ProviderRecord
	err error
}

// FetchAll queries every provider concurrently for one issue. A provider
// failure never fails the whole operation as long as another provider
// succeeds. Providers still pending at the orchestration deadline are
// recorded as timed out without blocking the rest.
//
// When every provider fails the returned error is
// [shared.ErrAllProvidersUnavailable], or [shared.ErrNotFound] when every
// provider terminally reported the issue missing ("no such issue" rather
// than "no data available").
func (o *Orchestrator) FetchAll(ctx context.Context, seriesKey string, number models.IssueNumber) (*Result, error) {
	if len(o.providers) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", shared.ErrAllProvidersUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	results := make(map[string]chan providerResult, len(o.providers))
	for _, p := range o.providers {
		p := p
		ch := make(chan providerResult, 1)
		results[p.Name()] = ch

		go func() {
			select {
			case o.sem <- struct{}{}:
			case <-ctx.Done():
				ch <- providerResult{err: fmt.Errorf("%w: %s queued past deadline", shared.ErrTimeout, p.Name())}
				return
			}
			defer func() { <-o.sem }()

			rec, err := p.FetchIssue(ctx, seriesKey, number)
			if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
				err = fmt.Errorf("%w: %s: %v", shared.ErrTimeout, p.Name(), err)
			}
			ch <- providerResult{rec: rec, err: err}
		}()
	}

	res := &Result{}
	for _, p := range o.providers {
		ch := results[p.Name()]

		// Prefer a result that is already in, even when the deadline has
		// passed: a provider that finished in time stays a success.
		var pr providerResult
		var timedOut bool
		select {
		case pr = <-ch:
		default:
			select {
			case pr = <-ch:
			case <-ctx.Done():
				timedOut = true
			}
		}

		switch {
		case timedOut:
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", p.Name(), shared.ErrTimeout))
		case pr.err != nil:
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", p.Name(), pr.err))
		default:
			res.Records = append(res.Records, pr.rec)
		}
	}

	if len(res.Records) > 0 {
		return res, nil
	}

	o.log.Warn("all providers failed", "series", seriesKey, "issue", number, "errors", len(res.Errors))

	allNotFound := true
	for _, err := range res.Errors {
		if !errors.Is(err, shared.ErrNotFound) {
			allNotFound = false
			break
		}
	}
	if allNotFound {
		return res, fmt.Errorf("%w: %s #%s", shared.ErrNotFound, seriesKey, number)
	}
	return res, fmt.Errorf("%w: %s #%s", shared.ErrAllProvidersUnavailable, seriesKey, number)
}
