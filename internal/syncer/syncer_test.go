package syncer

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"comicshelf/internal/cache"
	"comicshelf/internal/collection"
	"comicshelf/internal/fetch"
	"comicshelf/internal/provider"
	"comicshelf/internal/ratelimit"
	"comicshelf/internal/reconcile"
	"comicshelf/internal/shared"
	"comicshelf/pkg/database"
	"comicshelf/pkg/models"
)

type stubClient struct {
	name  string
	title string
	err   error
	calls atomic.Int32
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) FetchIssue(ctx context.Context, seriesKey string, number models.IssueNumber) (*models.ProviderRecord, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ProviderRecord{
		Provider:  s.name,
		SeriesKey: seriesKey,
		Volume:    1,
		Number:    number,
		Line:      models.LineOriginal,
		Title:     s.title,
		FetchedAt: time.Now(),
	}, nil
}

func gate(t *testing.T, clients ...*stubClient) []*provider.Gated {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	limiter := ratelimit.NewLimiter(nil)
	gated := make([]*provider.Gated, 0, len(clients))
	for _, c := range clients {
		limiter.SetBucket(c.name, ratelimit.Bucket{Burst: 100, PerSec: 100})
		gated = append(gated, provider.Gate(c, limiter, cache.New[*models.ProviderRecord](), time.Minute, provider.DefaultPolicy(), logger))
	}
	return gated
}

func newTestSyncer(t *testing.T, store *collection.Store, clients ...*stubClient) (*Syncer, *collection.Graph) {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	graph := collection.NewGraph()
	names := make([]string, 0, len(clients))
	for _, c := range clients {
		names = append(names, c.name)
	}
	orch := fetch.New(gate(t, clients...), 4, 5*time.Second, logger)
	engine := reconcile.New(names, graph, logger)
	return New(orch, engine, graph, store, nil, logger), graph
}

func TestSyncSeries(t *testing.T) {
	a := &stubClient{name: "alpha", title: "From Alpha"}
	b := &stubClient{name: "beta", title: "From Beta"}
	s, graph := newTestSyncer(t, nil, a, b)

	sum, err := s.SyncSeries(context.Background(), "saga", []models.IssueNumber{"1", "2", "3"})
	require.NoError(t, err)
	require.Equal(t, 3, sum.Editions)
	require.Empty(t, sum.Failed)

	issues := graph.IssuesOf("saga", 0)
	require.Len(t, issues, 3)
	ed := issues[0].EditionFor(models.LineOriginal)
	require.NotNil(t, ed)
	require.Equal(t, "From Alpha", ed.Title)
}

func TestSyncSeriesContinuesPastFailures(t *testing.T) {
	a := &stubClient{name: "alpha", err: shared.ErrNotFound}
	s, _ := newTestSyncer(t, nil, a)

	sum, err := s.SyncSeries(context.Background(), "saga", []models.IssueNumber{"1", "2"})
	require.NoError(t, err)
	require.Equal(t, 0, sum.Editions)
	require.Equal(t, []string{"1", "2"}, sum.Failed)
}

func TestSyncSeriesPersists(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.Migrate(db))
	store := collection.NewStore(db)

	a := &stubClient{name: "alpha", title: "Saved"}
	s, graph := newTestSyncer(t, store, a)

	_, err = s.SyncSeries(context.Background(), "saga", []models.IssueNumber{"1"})
	require.NoError(t, err)
	require.True(t, graph.Drain().Empty())

	loaded, err := store.LoadGraph(context.Background())
	require.NoError(t, err)
	got, ok := loaded.Issue(models.IssueKey{SeriesKey: "saga", Volume: 1, Number: "1"})
	require.True(t, ok)
	require.Equal(t, "Saved", got.EditionFor(models.LineOriginal).Title)
}

func TestRefreshBypassesCache(t *testing.T) {
	a := &stubClient{name: "alpha", title: "v1"}
	s, graph := newTestSyncer(t, nil, a)

	_, err := s.SyncIssue(context.Background(), "saga", "1")
	require.NoError(t, err)
	require.EqualValues(t, 1, a.calls.Load())

	// cached: no upstream call
	_, err = s.SyncIssue(context.Background(), "saga", "1")
	require.NoError(t, err)
	require.EqualValues(t, 1, a.calls.Load())

	a.title = "v2"
	_, err = s.Refresh(context.Background(), "saga", "1")
	require.NoError(t, err)
	require.EqualValues(t, 2, a.calls.Load())

	issue, ok := graph.Issue(models.IssueKey{SeriesKey: "saga", Volume: 1, Number: "1"})
	require.True(t, ok)
	require.Equal(t, "v2", issue.EditionFor(models.LineOriginal).Title)
}

func TestSyncAll(t *testing.T) {
	a := &stubClient{name: "alpha", title: "T"}
	s, graph := newTestSyncer(t, nil, a)

	sums, err := s.SyncAll(context.Background(), map[string][]models.IssueNumber{
		"saga":        {"1", "2"},
		"paper-girls": {"1"},
	})
	require.NoError(t, err)
	require.Len(t, sums, 2)
	require.Len(t, graph.IssuesOf("saga", 0), 2)
	require.Len(t, graph.IssuesOf("paper-girls", 0), 1)
}
