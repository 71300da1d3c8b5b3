// package collection holds the canonical in-memory model of the user's
// collection: Series -> Issues -> Editions plus per-user ownership records,
// with the completeness/gap analyzer on top.
package collection

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

// OwnKey identifies one ownership record.
type OwnKey struct {
	UserID string
	Issue  models.IssueKey
	Line   string
}

// MutationSet records which records changed since the last drain, for the
// persistence layer's SaveChanges contract.
type MutationSet struct {
	Series    map[string]struct{}
	Issues    map[models.IssueKey]struct{}
	Ownership map[OwnKey]struct{}
}

func newMutationSet() *MutationSet {
	return &MutationSet{
		Series:    make(map[string]struct{}),
		Issues:    make(map[models.IssueKey]struct{}),
		Ownership: make(map[OwnKey]struct{}),
	}
}

// Empty reports whether the set records no changes.
func (m *MutationSet) Empty() bool {
	return len(m.Series) == 0 && len(m.Issues) == 0 && len(m.Ownership) == 0
}

// Graph is the canonical collection model. Catalog fields are mutated only by
// reconciliation (through MutateIssue, which holds the per-issue lock) and
// ownership only through SetOwnership. The graph-wide RWMutex guards the maps
// and series records; issue and edition fields are guarded by the per-issue
// locks, so every read accessor returns a snapshot copied under the issue's
// lock rather than a live pointer. Writes to different issues do not contend
// with each other beyond the brief map access.
type Graph struct {
	mu        sync.RWMutex
	series    map[string]*models.Series
	issues    map[models.IssueKey]*models.Issue
	ownership map[OwnKey]*models.OwnershipRecord
	locks     map[models.IssueKey]*sync.Mutex
	pending   *MutationSet
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		series:    make(map[string]*models.Series),
		issues:    make(map[models.IssueKey]*models.Issue),
		ownership: make(map[OwnKey]*models.OwnershipRecord),
		locks:     make(map[models.IssueKey]*sync.Mutex),
		pending:   newMutationSet(),
	}
}

// EnsureSeries registers the series for key, creating it if unknown.
func (g *Graph) EnsureSeries(key, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.series[key]
	if !ok {
		s = &models.Series{Key: key, Name: name}
		g.series[key] = s
		g.pending.Series[key] = struct{}{}
	}
	if name != "" && s.Name == "" {
		s.Name = name
		g.pending.Series[key] = struct{}{}
	}
}

// Series returns a snapshot of the series for key. The copy carries its own
// volume list and issue snapshots; mutating it does not touch the graph.
func (g *Graph) Series(key string) (*models.Series, bool) {
	g.mu.RLock()
	s, ok := g.series[key]
	if !ok {
		g.mu.RUnlock()
		return nil, false
	}
	out := &models.Series{
		Key:     s.Key,
		Name:    s.Name,
		Volumes: append([]int(nil), s.Volumes...),
	}
	live := append([]*models.Issue(nil), s.Issues...)
	g.mu.RUnlock()

	out.Issues = make([]*models.Issue, len(live))
	for n, i := range live {
		out.Issues[n] = g.snapshotIssue(i)
	}
	return out, true
}

// SeriesKeys returns every known series key.
func (g *Graph) SeriesKeys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]string, 0, len(g.series))
	for k := range g.series {
		keys = append(keys, k)
	}
	return keys
}

// AddIssue inserts a new issue, enforcing the (series, volume, number)
// uniqueness invariant. Fails with [shared.ErrDuplicateKey] if the key is
// already present; duplicates are never silently merged.
func (g *Graph) AddIssue(issue *models.Issue) error {
	key := issue.Key()

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.issues[key]; exists {
		return fmt.Errorf("%w: issue %s", shared.ErrDuplicateKey, key)
	}

	s, ok := g.series[issue.SeriesKey]
	if !ok {
		s = &models.Series{Key: issue.SeriesKey}
		g.series[issue.SeriesKey] = s
		g.pending.Series[issue.SeriesKey] = struct{}{}
	}
	if !s.HasVolume(issue.Volume) {
		s.Volumes = append(s.Volumes, issue.Volume)
		g.pending.Series[issue.SeriesKey] = struct{}{}
	}
	s.Issues = append(s.Issues, issue)
	g.issues[key] = issue
	g.pending.Issues[key] = struct{}{}
	return nil
}

// Issue returns a snapshot of the issue for key.
func (g *Graph) Issue(key models.IssueKey) (*models.Issue, bool) {
	g.mu.RLock()
	i, ok := g.issues[key]
	g.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return g.snapshotIssue(i), true
}

// IssuesOf returns snapshots of the issues of one series, optionally filtered
// by volume (volume <= 0 means all volumes), sorted by issue number.
func (g *Graph) IssuesOf(seriesKey string, volume int) []*models.Issue {
	g.mu.RLock()
	s, ok := g.series[seriesKey]
	if !ok {
		g.mu.RUnlock()
		return nil
	}
	live := make([]*models.Issue, 0, len(s.Issues))
	for _, i := range s.Issues {
		if volume > 0 && i.Volume != volume {
			continue
		}
		live = append(live, i)
	}
	g.mu.RUnlock()

	out := make([]*models.Issue, len(live))
	for n, i := range live {
		out[n] = g.snapshotIssue(i)
	}
	sortIssues(out)
	return out
}

// snapshotIssue deep-copies an issue under its per-issue lock, the same lock
// MutateIssue holds while writing, so the copy never observes a half-applied
// mutation. Must not be called with g.mu held.
func (g *Graph) snapshotIssue(i *models.Issue) *models.Issue {
	lock := g.issueLock(i.Key())
	lock.Lock()
	defer lock.Unlock()
	return i.Clone()
}

// issueLock returns the mutex serializing writes to one issue, creating it
// on first use.
func (g *Graph) issueLock(key models.IssueKey) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// MutateIssue runs fn with exclusive write access to one issue. Only one
// mutation may apply to a given issue at a time; mutations on different
// issues proceed concurrently. The issue is created if absent.
func (g *Graph) MutateIssue(key models.IssueKey, fn func(*models.Issue) error) error {
	lock := g.issueLock(key)
	lock.Lock()
	defer lock.Unlock()

	g.mu.Lock()
	issue, ok := g.issues[key]
	g.mu.Unlock()
	if !ok {
		issue = &models.Issue{SeriesKey: key.SeriesKey, Volume: key.Volume, Number: key.Number}
		if err := g.AddIssue(issue); err != nil {
			if !errors.Is(err, shared.ErrDuplicateKey) {
				return err
			}
			// Lost a race with a concurrent insert; use the winner.
			g.mu.Lock()
			issue = g.issues[key]
			g.mu.Unlock()
		}
	}

	if err := fn(issue); err != nil {
		return err
	}

	g.mu.Lock()
	g.pending.Issues[key] = struct{}{}
	g.mu.Unlock()
	return nil
}

// SetOwnership validates and stores an ownership record. Transitioning to
// sold/traded requires an acquisition: either on the incoming record or
// carried over from the existing one.
func (g *Graph) SetOwnership(rec *models.OwnershipRecord) error {
	key := OwnKey{UserID: rec.UserID, Issue: rec.IssueKey, Line: rec.Line}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, known := g.issues[rec.IssueKey]; !known {
		return fmt.Errorf("%w: %s", shared.ErrIssueNotFound, rec.IssueKey)
	}

	prev := g.ownership[key]
	if rec.AcquiredAt == nil && prev != nil {
		rec.AcquiredAt = prev.AcquiredAt
	}
	if (rec.State == models.StateSold || rec.State == models.StateTraded) && rec.DisposedAt == nil {
		now := time.Now()
		rec.DisposedAt = &now
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidTransition, err)
	}

	rec.UpdatedAt = time.Now()
	g.ownership[key] = rec
	g.pending.Ownership[key] = struct{}{}
	return nil
}

// Ownership returns a user's record for one (issue, line) pair.
func (g *Graph) Ownership(userID string, issue models.IssueKey, line string) (*models.OwnershipRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.ownership[OwnKey{UserID: userID, Issue: issue, Line: line}]
	return r, ok
}

// OwnershipOf returns every ownership record a user holds in one series.
func (g *Graph) OwnershipOf(userID, seriesKey string) []*models.OwnershipRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*models.OwnershipRecord
	for k, r := range g.ownership {
		if k.UserID == userID && k.Issue.SeriesKey == seriesKey {
			out = append(out, r)
		}
	}
	return out
}

// Drain returns the accumulated mutation set and resets the pending set.
// The persistence layer feeds this to SaveChanges.
func (g *Graph) Drain() *MutationSet {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.pending
	g.pending = newMutationSet()
	return ms
}
