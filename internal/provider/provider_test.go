package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"comicshelf/internal/cache"
	"comicshelf/internal/ratelimit"
	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

func TestComicVineFetchIssue(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/issues", r.URL.Path)
			require.Contains(t, r.URL.Query().Get("filter"), "series:hellboy")
			io.WriteString(w, `{
				"status_code": 1,
				"results": [{
					"name": "Seed of Destruction Part 1",
					"issue_number": "1",
					"cover_date": "1994-03-01",
					"volume": {"name": "Hellboy", "number": 1},
					"person_credits": [{"name": "Mike Mignola", "role": "writer"}, {"name": "John Byrne", "role": "script"}],
					"image": {"original_url": "https://img.example/hb1.jpg"},
					"reprint": false
				}]
			}`)
		}))
		defer srv.Close()

		cv := NewComicVine(srv.URL, "test-key")
		rec, err := cv.FetchIssue(context.Background(), "hellboy", "1")
		require.NoError(t, err)
		require.Equal(t, "comicvine", rec.Provider)
		require.Equal(t, "hellboy", rec.SeriesKey)
		require.Equal(t, 1, rec.Volume)
		require.Equal(t, models.IssueNumber("1"), rec.Number)
		require.Equal(t, models.LineOriginal, rec.Line)
		require.Equal(t, "Seed of Destruction Part 1", rec.Title)
		require.Equal(t, []string{"Mike Mignola", "John Byrne"}, rec.Creators)
		require.Equal(t, "https://img.example/hb1.jpg", rec.CoverURL)
		require.Equal(t, 1994, rec.CoverDate.Year())
		require.False(t, rec.FetchedAt.IsZero())
	})

	t.Run("Empty Results Is NotFound", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status_code": 1, "results": []}`)
		}))
		defer srv.Close()

		cv := NewComicVine(srv.URL, "")
		_, err := cv.FetchIssue(context.Background(), "hellboy", "999")
		require.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("429 Is RateLimited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		cv := NewComicVine(srv.URL, "")
		_, err := cv.FetchIssue(context.Background(), "hellboy", "1")
		require.ErrorIs(t, err, shared.ErrRateLimited)
	})

	t.Run("500 Is Unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		cv := NewComicVine(srv.URL, "")
		_, err := cv.FetchIssue(context.Background(), "hellboy", "1")
		require.ErrorIs(t, err, shared.ErrUnavailable)
	})
}

func TestGCDFetchIssue(t *testing.T) {
	t.Run("OK With Variant", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/issues/hellboy/1.5", r.URL.Path)
			io.WriteString(w, `{
				"series_slug": "hellboy",
				"volume": "2",
				"number": "1.5",
				"descriptor": "Hellboy: The Corpse",
				"publication_date": "1996-03",
				"credits": "Mike Mignola; Dave Stewart",
				"cover_url": "https://img.example/corpse.jpg",
				"variant_of": "hellboy-1"
			}`)
		}))
		defer srv.Close()

		g := NewGCD(srv.URL)
		rec, err := g.FetchIssue(context.Background(), "hellboy", "1.5")
		require.NoError(t, err)
		require.Equal(t, "gcd", rec.Provider)
		require.Equal(t, 2, rec.Volume)
		require.Equal(t, models.IssueNumber("1.5"), rec.Number)
		require.Equal(t, models.LineReprint, rec.Line)
		require.Equal(t, "Hellboy: The Corpse", rec.Title)
		require.Equal(t, []string{"Mike Mignola", "Dave Stewart"}, rec.Creators)
		require.Equal(t, time.March, rec.CoverDate.Month())
	})

	t.Run("404 Is NotFound", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		g := NewGCD(srv.URL)
		_, err := g.FetchIssue(context.Background(), "hellboy", "999")
		require.ErrorIs(t, err, shared.ErrNotFound)
	})
}

// stubClient scripts FetchIssue responses for gated-client tests.
type stubClient struct {
	name  string
	calls int64
	fn    func(call int64) (*models.ProviderRecord, error)
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) FetchIssue(ctx context.Context, seriesKey string, number models.IssueNumber) (*models.ProviderRecord, error) {
	n := atomic.AddInt64(&s.calls, 1)
	return s.fn(n)
}

func okRecord(provider string) *models.ProviderRecord {
	return &models.ProviderRecord{
		Provider:  provider,
		SeriesKey: "hellboy",
		Volume:    1,
		Number:    "1",
		Line:      models.LineOriginal,
		Title:     "Seed of Destruction",
		FetchedAt: time.Now(),
	}
}

func newGated(t *testing.T, inner Client, burst int) *Gated {
	t.Helper()
	limiter := ratelimit.NewLimiter(map[string]ratelimit.Bucket{
		inner.Name(): {Burst: burst, PerSec: 1000},
	})
	c := cache.New[*models.ProviderRecord]()
	policy := Policy{BaseDelay: time.Millisecond, Factor: 2, MaxDelay: 10 * time.Millisecond, MaxAttempts: 3}
	return Gate(inner, limiter, c, time.Minute, policy, shared.NewLogger(io.Discard))
}

func TestGatedFetchIssue(t *testing.T) {
	t.Run("Caches Success", func(t *testing.T) {
		stub := &stubClient{name: "cv", fn: func(int64) (*models.ProviderRecord, error) {
			return okRecord("cv"), nil
		}}
		g := newGated(t, stub, 10)

		for i := 0; i < 3; i++ {
			rec, err := g.FetchIssue(context.Background(), "hellboy", "1")
			require.NoError(t, err)
			require.Equal(t, "Seed of Destruction", rec.Title)
		}
		require.Equal(t, int64(1), atomic.LoadInt64(&stub.calls))
	})

	t.Run("Retries Transient", func(t *testing.T) {
		stub := &stubClient{name: "cv", fn: func(call int64) (*models.ProviderRecord, error) {
			if call < 3 {
				return nil, shared.ErrUnavailable
			}
			return okRecord("cv"), nil
		}}
		g := newGated(t, stub, 10)

		rec, err := g.FetchIssue(context.Background(), "hellboy", "1")
		require.NoError(t, err)
		require.Equal(t, "cv", rec.Provider)
		require.Equal(t, int64(3), atomic.LoadInt64(&stub.calls))
	})

	t.Run("NotFound Not Retried", func(t *testing.T) {
		stub := &stubClient{name: "cv", fn: func(int64) (*models.ProviderRecord, error) {
			return nil, fmt.Errorf("%w: nope", shared.ErrNotFound)
		}}
		g := newGated(t, stub, 10)

		_, err := g.FetchIssue(context.Background(), "hellboy", "1")
		require.ErrorIs(t, err, shared.ErrNotFound)
		require.Equal(t, int64(1), atomic.LoadInt64(&stub.calls))
	})

	t.Run("Invalidate Forces Upstream", func(t *testing.T) {
		stub := &stubClient{name: "cv", fn: func(int64) (*models.ProviderRecord, error) {
			return okRecord("cv"), nil
		}}
		g := newGated(t, stub, 10)

		_, err := g.FetchIssue(context.Background(), "hellboy", "1")
		require.NoError(t, err)
		g.Invalidate("hellboy", "1")
		_, err = g.FetchIssue(context.Background(), "hellboy", "1")
		require.NoError(t, err)
		require.Equal(t, int64(2), atomic.LoadInt64(&stub.calls))
	})

	t.Run("Admission Deadline Surfaces", func(t *testing.T) {
		stub := &stubClient{name: "cv", fn: func(int64) (*models.ProviderRecord, error) {
			return okRecord("cv"), nil
		}}
		limiter := ratelimit.NewLimiter(map[string]ratelimit.Bucket{
			"cv": {Burst: 1, PerSec: 0.001},
		})
		limiter.Allow("cv") // drain the bucket
		c := cache.New[*models.ProviderRecord]()
		g := Gate(stub, limiter, c, time.Minute, DefaultPolicy(), shared.NewLogger(io.Discard))
		g.CallTimeout = 20 * time.Millisecond

		_, err := g.FetchIssue(context.Background(), "hellboy", "1")
		require.ErrorIs(t, err, shared.ErrAdmissionDeadline)
		require.Equal(t, int64(0), atomic.LoadInt64(&stub.calls))
	})
}
