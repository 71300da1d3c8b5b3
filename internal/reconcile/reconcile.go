// package reconcile merges provider records for the same logical issue into
// one canonical edition, resolving field conflicts by a deterministic
// provider-precedence policy and recording provenance for every winner.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"comicshelf/internal/collection"
	"comicshelf/pkg/models"
)

// Engine applies provider records to the collection graph.
type Engine struct {
	precedence map[string]int // provider name -> rank, lower wins
	graph      *collection.Graph
	log        *log.Logger
}

// New creates an engine. precedence lists provider names in winning order;
// providers not listed rank equal, after all listed ones, and fall back to
// the most-recent-fetch tie-break.
func New(precedence []string, graph *collection.Graph, logger *log.Logger) *Engine {
	ranks := make(map[string]int, len(precedence))
	for i, name := range precedence {
		ranks[name] = i
	}
	return &Engine{precedence: ranks, graph: graph, log: logger}
}

func (e *Engine) rank(provider string) int {
	if r, ok := e.precedence[provider]; ok {
		return r
	}
	return len(e.precedence)
}

// order sorts records so the winner for any field is simply the first record
// supplying a non-empty value: by precedence rank, then most recent fetch
// first, then provider name so equal timestamps stay deterministic.
func (e *Engine) order(records []*models.ProviderRecord) []*models.ProviderRecord {
	out := make([]*models.ProviderRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := e.rank(out[i].Provider), e.rank(out[j].Provider)
		if ri != rj {
			return ri < rj
		}
		if !out[i].FetchedAt.Equal(out[j].FetchedAt) {
			return out[i].FetchedAt.After(out[j].FetchedAt)
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}

// Reconcile merges records describing one (issue, edition line) into the
// graph, creating the issue and edition if they are new and otherwise
// updating only fields whose value actually changed. The merge is
// deterministic and idempotent: reconciling identical inputs twice yields
// the same edition.
func (e *Engine) Reconcile(records []*models.ProviderRecord) (*models.Edition, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("reconcile: no records")
	}

	ordered := e.order(records)
	canonical := ordered[0]
	key := canonical.IssueKey()
	line := canonical.Line
	if line == "" {
		line = models.LineOriginal
	}

	merged := &models.Edition{
		IssueKey:   key,
		Line:       line,
		Provenance: make(map[string]models.FieldProvenance),
	}

	mergeField(merged, ordered, models.FieldTitle,
		func(r *models.ProviderRecord) string { return r.Title },
		func(v string) { merged.Title = v })
	mergeField(merged, ordered, models.FieldCoverURL,
		func(r *models.ProviderRecord) string { return r.CoverURL },
		func(v string) { merged.CoverURL = v })
	mergeDateField(merged, ordered)
	mergeCreatorsField(merged, ordered)

	var result *models.Edition
	err := e.graph.MutateIssue(key, func(issue *models.Issue) error {
		if issue.PubDate.IsZero() && !merged.CoverDate.IsZero() {
			issue.PubDate = merged.CoverDate
		}

		existing := issue.EditionFor(line)
		if existing == nil {
			merged.UpdatedAt = time.Now()
			issue.Editions = append(issue.Editions, merged)
			// The stored edition stays private to the graph; hand the
			// caller a snapshot taken while the issue lock is held.
			result = merged.Clone()
			e.log.Debug("edition created", "issue", key, "line", line)
			return nil
		}

		if applyDiff(existing, merged) {
			existing.UpdatedAt = time.Now()
			e.log.Debug("edition updated", "issue", key, "line", line)
		}
		result = existing.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mergeField picks the first non-empty value in precedence order and records
// provenance, flagging a conflict when a losing record disagreed.
func mergeField(ed *models.Edition, ordered []*models.ProviderRecord, field string, get func(*models.ProviderRecord) string, set func(string)) {
	winner := ""
	var won *models.ProviderRecord
	conflict := false
	for _, r := range ordered {
		v := get(r)
		if v == "" {
			continue
		}
		if won == nil {
			winner, won = v, r
			continue
		}
		if v != winner {
			conflict = true
		}
	}
	if won == nil {
		return
	}
	set(winner)
	ed.Provenance[field] = models.FieldProvenance{
		Provider:  won.Provider,
		FetchedAt: won.FetchedAt,
		Conflict:  conflict,
	}
}

func mergeDateField(ed *models.Edition, ordered []*models.ProviderRecord) {
	var won *models.ProviderRecord
	conflict := false
	for _, r := range ordered {
		if r.CoverDate.IsZero() {
			continue
		}
		if won == nil {
			won = r
			continue
		}
		if !r.CoverDate.Equal(won.CoverDate) {
			conflict = true
		}
	}
	if won == nil {
		return
	}
	ed.CoverDate = won.CoverDate
	ed.Provenance[models.FieldCoverDate] = models.FieldProvenance{
		Provider:  won.Provider,
		FetchedAt: won.FetchedAt,
		Conflict:  conflict,
	}
}

func mergeCreatorsField(ed *models.Edition, ordered []*models.ProviderRecord) {
	var won *models.ProviderRecord
	conflict := false
	for _, r := range ordered {
		if len(r.Creators) == 0 {
			continue
		}
		if won == nil {
			won = r
			continue
		}
		if !equalStrings(r.Creators, won.Creators) {
			conflict = true
		}
	}
	if won == nil {
		return
	}
	ed.Creators = append([]string(nil), won.Creators...)
	ed.Provenance[models.FieldCreators] = models.FieldProvenance{
		Provider:  won.Provider,
		FetchedAt: won.FetchedAt,
		Conflict:  conflict,
	}
}

// applyDiff copies changed fields from next onto existing and reports
// whether anything changed, so unchanged reconciles do not bump timestamps.
func applyDiff(existing, next *models.Edition) bool {
	changed := false
	if next.Title != "" && next.Title != existing.Title {
		existing.Title = next.Title
		changed = true
	}
	if !next.CoverDate.IsZero() && !next.CoverDate.Equal(existing.CoverDate) {
		existing.CoverDate = next.CoverDate
		changed = true
	}
	if len(next.Creators) > 0 && !equalStrings(next.Creators, existing.Creators) {
		existing.Creators = append([]string(nil), next.Creators...)
		changed = true
	}
	if next.CoverURL != "" && next.CoverURL != existing.CoverURL {
		existing.CoverURL = next.CoverURL
		changed = true
	}
	for field, prov := range next.Provenance {
		if existing.Provenance[field] != prov {
			existing.Provenance[field] = prov
			changed = true
		}
	}
	return changed
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GroupByLine splits records by edition line so each group reconciles into
// its own edition.
func GroupByLine(records []*models.ProviderRecord) map[string][]*models.ProviderRecord {
	groups := make(map[string][]*models.ProviderRecord)
	for _, r := range records {
		line := r.Line
		if line == "" {
			line = models.LineOriginal
		}
		groups[line] = append(groups[line], r)
	}
	return groups
}

// ReconcileAll groups records by edition line and reconciles each group,
// returning the resulting editions.
func (e *Engine) ReconcileAll(records []*models.ProviderRecord) ([]*models.Edition, error) {
	groups := GroupByLine(records)

	lines := make([]string, 0, len(groups))
	for line := range groups {
		lines = append(lines, line)
	}
	sort.Strings(lines)

	editions := make([]*models.Edition, 0, len(groups))
	for _, line := range lines {
		ed, err := e.Reconcile(groups[line])
		if err != nil {
			return editions, err
		}
		editions = append(editions, ed)
	}
	return editions, nil
}
