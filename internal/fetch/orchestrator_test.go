package fetch

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"comicshelf/internal/cache"
	"comicshelf/internal/provider"
	"comicshelf/internal/ratelimit"
	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

// scripted is a provider whose FetchIssue behavior is fixed per test.
type scripted struct {
	name    string
	delay   time.Duration
	err     error
	calls   int64
	blocked *int64 // peak concurrent calls, shared across providers
	active  *int64
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) FetchIssue(ctx context.Context, seriesKey string, number models.IssueNumber) (*models.ProviderRecord, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.active != nil {
		cur := atomic.AddInt64(s.active, 1)
		defer atomic.AddInt64(s.active, -1)
		for {
			peak := atomic.LoadInt64(s.blocked)
			if cur <= peak || atomic.CompareAndSwapInt64(s.blocked, peak, cur) {
				break
			}
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", shared.ErrTimeout, s.name)
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.ProviderRecord{
		Provider:  s.name,
		SeriesKey: seriesKey,
		Volume:    1,
		Number:    number,
		Line:      models.LineOriginal,
		Title:     "from " + s.name,
		FetchedAt: time.Now(),
	}, nil
}

func gate(t *testing.T, clients ...provider.Client) []*provider.Gated {
	t.Helper()
	buckets := make(map[string]ratelimit.Bucket, len(clients))
	for _, c := range clients {
		buckets[c.Name()] = ratelimit.Bucket{Burst: 100, PerSec: 10000}
	}
	limiter := ratelimit.NewLimiter(buckets)
	logger := shared.NewLogger(io.Discard)
	policy := provider.Policy{BaseDelay: time.Millisecond, Factor: 2, MaxDelay: 5 * time.Millisecond, MaxAttempts: 1}

	gated := make([]*provider.Gated, 0, len(clients))
	for _, c := range clients {
		gated = append(gated, provider.Gate(c, limiter, cache.New[*models.ProviderRecord](), time.Minute, policy, logger))
	}
	return gated
}

func TestFetchAll(t *testing.T) {
	logger := shared.NewLogger(io.Discard)

	t.Run("All Succeed", func(t *testing.T) {
		a := &scripted{name: "a"}
		b := &scripted{name: "b"}
		o := New(gate(t, a, b), 4, time.Second, logger)

		res, err := o.FetchAll(context.Background(), "hellboy", "1")
		require.NoError(t, err)
		require.Len(t, res.Records, 2)
		require.Empty(t, res.Errors)
	})

	t.Run("Partial Failure Is Success", func(t *testing.T) {
		a := &scripted{name: "a", err: shared.ErrUnavailable}
		b := &scripted{name: "b"}
		o := New(gate(t, a, b), 4, time.Second, logger)

		res, err := o.FetchAll(context.Background(), "hellboy", "1")
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		require.Equal(t, "from b", res.Records[0].Title)
		require.Len(t, res.Errors, 1)
		require.ErrorIs(t, res.Errors[0], shared.ErrUnavailable)
	})

	t.Run("All Fail Transient", func(t *testing.T) {
		a := &scripted{name: "a", err: shared.ErrUnavailable}
		b := &scripted{name: "b", err: shared.ErrUnavailable}
		o := New(gate(t, a, b), 4, time.Second, logger)

		res, err := o.FetchAll(context.Background(), "hellboy", "1")
		require.ErrorIs(t, err, shared.ErrAllProvidersUnavailable)
		require.Empty(t, res.Records)
		require.Len(t, res.Errors, 2)
	})

	t.Run("All NotFound Means No Such Issue", func(t *testing.T) {
		a := &scripted{name: "a", err: shared.ErrNotFound}
		b := &scripted{name: "b", err: shared.ErrNotFound}
		o := New(gate(t, a, b), 4, time.Second, logger)

		_, err := o.FetchAll(context.Background(), "hellboy", "999")
		require.ErrorIs(t, err, shared.ErrNotFound)
		require.NotErrorIs(t, err, shared.ErrAllProvidersUnavailable)
	})

	t.Run("Slow Provider Times Out Without Blocking Others", func(t *testing.T) {
		a := &scripted{name: "a", delay: 5 * time.Second}
		b := &scripted{name: "b"}
		o := New(gate(t, a, b), 4, 100*time.Millisecond, logger)

		start := time.Now()
		res, err := o.FetchAll(context.Background(), "hellboy", "1")
		require.NoError(t, err)
		require.Less(t, time.Since(start), time.Second)
		require.Len(t, res.Records, 1)
		require.Equal(t, "from b", res.Records[0].Title)
		require.Len(t, res.Errors, 1)
		require.ErrorIs(t, res.Errors[0], shared.ErrTimeout)
	})

	t.Run("No Providers", func(t *testing.T) {
		o := New(nil, 4, time.Second, logger)
		_, err := o.FetchAll(context.Background(), "hellboy", "1")
		require.ErrorIs(t, err, shared.ErrAllProvidersUnavailable)
	})
}

// Concurrency stays bounded by the pool even with many providers.
func TestWorkerPoolBound(t *testing.T) {
	var peak, active int64
	clients := make([]provider.Client, 0, 10)
	for i := 0; i < 10; i++ {
		clients = append(clients, &scripted{
			name:    fmt.Sprintf("p%d", i),
			delay:   30 * time.Millisecond,
			blocked: &peak,
			active:  &active,
		})
	}

	o := New(gate(t, clients...), 3, 5*time.Second, shared.NewLogger(io.Discard))
	res, err := o.FetchAll(context.Background(), "hellboy", "1")
	require.NoError(t, err)
	require.Len(t, res.Records, 10)
	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestCancellation(t *testing.T) {
	a := &scripted{name: "a", delay: 5 * time.Second}
	o := New(gate(t, a), 2, 10*time.Second, shared.NewLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := o.FetchAll(ctx, "hellboy", "1")
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}
