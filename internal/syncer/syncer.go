package syncer

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"comicshelf/internal/collection"
	"comicshelf/internal/events"
	"comicshelf/internal/fetch"
	"comicshelf/internal/reconcile"
	"comicshelf/pkg/models"
)

// Summary reports the outcome of syncing one series.
type Summary struct {
	SeriesKey string   `json:"series_key"`
	Editions  int      `json:"editions"`
	Conflicts int      `json:"conflicts"`
	Failed    []string `json:"failed,omitempty"`
}

// Syncer drives fetch -> reconcile -> persist for whole series. Store and
// Hub are optional; a nil Store keeps everything in memory.
type Syncer struct {
	Orch   *fetch.Orchestrator
	Engine *reconcile.Engine
	Graph  *collection.Graph
	Store  *collection.Store
	Hub    *events.Hub
	Log    *log.Logger
}

func New(orch *fetch.Orchestrator, engine *reconcile.Engine, graph *collection.Graph, store *collection.Store, hub *events.Hub, logger *log.Logger) *Syncer {
	return &Syncer{Orch: orch, Engine: engine, Graph: graph, Store: store, Hub: hub, Log: logger}
}

// SyncIssue fetches one issue from every provider and folds the records
// into the graph, one edition per publication line seen upstream.
func (s *Syncer) SyncIssue(ctx context.Context, seriesKey string, number models.IssueNumber) ([]*models.Edition, error) {
	res, err := s.Orch.FetchAll(ctx, seriesKey, number)
	if err != nil {
		return nil, err
	}
	return s.Engine.ReconcileAll(res.Records)
}

// SyncSeries syncs every listed issue number, continuing past individual
// failures, then flushes dirty state and announces completion.
func (s *Syncer) SyncSeries(ctx context.Context, seriesKey string, numbers []models.IssueNumber) (*Summary, error) {
	sum := &Summary{SeriesKey: seriesKey}

	for _, n := range numbers {
		editions, err := s.SyncIssue(ctx, seriesKey, n)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			s.Log.Warn("issue sync failed", "series", seriesKey, "number", n, "err", err)
			sum.Failed = append(sum.Failed, string(n))
			continue
		}
		sum.Editions += len(editions)
		for _, ed := range editions {
			for _, prov := range ed.Provenance {
				if prov.Conflict {
					sum.Conflicts++
					break
				}
			}
		}
	}

	if err := s.Flush(ctx); err != nil {
		return sum, err
	}

	if s.Hub != nil {
		s.Hub.BroadcastJSON(events.NewSyncCompleted(seriesKey, sum.Editions, sum.Conflicts))
	}
	s.Log.Info("series synced",
		"series", seriesKey,
		"editions", sum.Editions,
		"conflicts", sum.Conflicts,
		"failed", len(sum.Failed))
	return sum, nil
}

// SyncAll syncs a batch of series concurrently.
func (s *Syncer) SyncAll(ctx context.Context, series map[string][]models.IssueNumber) ([]*Summary, error) {
	g, ctx := errgroup.WithContext(ctx)
	out := make([]*Summary, 0, len(series))
	results := make(chan *Summary, len(series))

	for key, numbers := range series {
		g.Go(func() error {
			sum, err := s.SyncSeries(ctx, key, numbers)
			if err != nil {
				return fmt.Errorf("sync %s: %w", key, err)
			}
			results <- sum
			return nil
		})
	}

	err := g.Wait()
	close(results)
	for sum := range results {
		out = append(out, sum)
	}
	return out, err
}

// Refresh drops cached provider responses for one issue and re-syncs it.
func (s *Syncer) Refresh(ctx context.Context, seriesKey string, number models.IssueNumber) ([]*models.Edition, error) {
	s.Orch.Invalidate(seriesKey, number)
	editions, err := s.SyncIssue(ctx, seriesKey, number)
	if err != nil {
		return nil, err
	}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	if s.Hub != nil {
		for _, ed := range editions {
			var changed []string
			for f := range ed.Provenance {
				changed = append(changed, f)
			}
			s.Hub.BroadcastJSON(events.NewMetadataUpdated(ed.IssueKey, ed.Line, changed))
		}
	}
	return editions, nil
}

// Flush persists any dirty graph state.
func (s *Syncer) Flush(ctx context.Context) error {
	if s.Store == nil {
		return nil
	}
	ms := s.Graph.Drain()
	if ms.Empty() {
		return nil
	}
	if err := s.Store.SaveChanges(ctx, s.Graph, ms); err != nil {
		return fmt.Errorf("persist sync changes: %w", err)
	}
	return nil
}
