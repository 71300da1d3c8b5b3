package collection

import (
	"fmt"
	"math"
	"sort"

	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

// Report is the completeness/gap analysis for one series and edition line.
type Report struct {
	SeriesKey  string               `json:"series_key"`
	Volume     int                  `json:"volume,omitempty"` // 0 = all volumes
	Line       string               `json:"line"`
	OwnedCount int                  `json:"owned_count"`
	TotalCount int                  `json:"total_count"`
	Percentage float64              `json:"percentage"`
	Missing    []models.IssueNumber `json:"missing_issues"`
}

// Completeness computes, for one user, how much of a series/edition-line is
// owned and which issues are missing. Issues are ordered numerically, with
// fractional numbers sorting between integers ("1" < "1.5" < "2"). An issue
// counts as owned when its ownership state is owned or read; wishlisted,
// sold and traded issues are gaps. A series with no issues yields 0.0 and an
// empty missing list.
func (g *Graph) Completeness(userID, seriesKey string, volume int, line string) (*Report, error) {
	if _, ok := g.Series(seriesKey); !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSeriesNotFound, seriesKey)
	}

	issues := g.IssuesOf(seriesKey, volume)

	rep := &Report{
		SeriesKey: seriesKey,
		Volume:    volume,
		Line:      line,
		Missing:   []models.IssueNumber{},
	}

	for _, issue := range issues {
		rep.TotalCount++
		rec, ok := g.Ownership(userID, issue.Key(), line)
		if ok && rec.Counted() {
			rep.OwnedCount++
			continue
		}
		rep.Missing = append(rep.Missing, issue.Number)
	}

	if rep.TotalCount > 0 {
		pct := float64(rep.OwnedCount) / float64(rep.TotalCount) * 100
		rep.Percentage = math.Round(pct*100) / 100
	}
	return rep, nil
}

// sortIssues orders issues by volume then numeric issue number.
func sortIssues(issues []*models.Issue) {
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Volume != issues[j].Volume {
			return issues[i].Volume < issues[j].Volume
		}
		return issues[i].Number.Less(issues[j].Number)
	})
}
