package collection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

func own(t *testing.T, g *Graph, user string, key models.IssueKey, line, state string) {
	t.Helper()
	acquired := time.Now().Add(-time.Hour)
	require.NoError(t, g.SetOwnership(&models.OwnershipRecord{
		UserID: user, IssueKey: key, Line: line, State: state, AcquiredAt: &acquired,
	}))
}

func TestCompleteness(t *testing.T) {
	t.Run("Unknown Series", func(t *testing.T) {
		g := NewGraph()
		_, err := g.Completeness("u1", "nope", 0, models.LineOriginal)
		require.ErrorIs(t, err, shared.ErrSeriesNotFound)
	})

	t.Run("Empty Series", func(t *testing.T) {
		g := NewGraph()
		g.EnsureSeries("hellboy", "Hellboy")

		rep, err := g.Completeness("u1", "hellboy", 0, models.LineOriginal)
		require.NoError(t, err)
		require.Equal(t, 0, rep.TotalCount)
		require.Equal(t, 0.0, rep.Percentage)
		require.Empty(t, rep.Missing)
	})

	t.Run("Fractional Ordering And Gaps", func(t *testing.T) {
		g := NewGraph()
		for _, n := range []models.IssueNumber{"1", "1.5", "2", "3"} {
			require.NoError(t, g.AddIssue(issue("hellboy", 1, n)))
		}
		own(t, g, "u1", models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"}, models.LineOriginal, models.StateOwned)
		own(t, g, "u1", models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "2"}, models.LineOriginal, models.StateRead)

		rep, err := g.Completeness("u1", "hellboy", 1, models.LineOriginal)
		require.NoError(t, err)
		require.Equal(t, 2, rep.OwnedCount)
		require.Equal(t, 4, rep.TotalCount)
		require.Equal(t, 50.0, rep.Percentage)
		require.Equal(t, []models.IssueNumber{"1.5", "3"}, rep.Missing)
	})

	t.Run("Edition Line Filter", func(t *testing.T) {
		g := NewGraph()
		key := models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"}
		require.NoError(t, g.AddIssue(issue("hellboy", 1, "1")))
		own(t, g, "u1", key, models.LineReprint, models.StateOwned)

		// Owning the reprint does not satisfy the original line.
		rep, err := g.Completeness("u1", "hellboy", 1, models.LineOriginal)
		require.NoError(t, err)
		require.Equal(t, 0, rep.OwnedCount)
		require.Equal(t, []models.IssueNumber{"1"}, rep.Missing)

		rep, err = g.Completeness("u1", "hellboy", 1, models.LineReprint)
		require.NoError(t, err)
		require.Equal(t, 1, rep.OwnedCount)
		require.Empty(t, rep.Missing)
	})

	t.Run("Sold Is A Gap", func(t *testing.T) {
		g := NewGraph()
		key := models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"}
		require.NoError(t, g.AddIssue(issue("hellboy", 1, "1")))
		own(t, g, "u1", key, models.LineOriginal, models.StateOwned)
		require.NoError(t, g.SetOwnership(&models.OwnershipRecord{
			UserID: "u1", IssueKey: key, Line: models.LineOriginal, State: models.StateSold,
		}))

		rep, err := g.Completeness("u1", "hellboy", 1, models.LineOriginal)
		require.NoError(t, err)
		require.Equal(t, 0, rep.OwnedCount)
		require.Equal(t, []models.IssueNumber{"1"}, rep.Missing)
	})

	t.Run("Rounding", func(t *testing.T) {
		g := NewGraph()
		for _, n := range []models.IssueNumber{"1", "2", "3"} {
			require.NoError(t, g.AddIssue(issue("hellboy", 1, n)))
		}
		own(t, g, "u1", models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"}, models.LineOriginal, models.StateOwned)

		rep, err := g.Completeness("u1", "hellboy", 1, models.LineOriginal)
		require.NoError(t, err)
		require.Equal(t, 33.33, rep.Percentage)
	})

	t.Run("Volume Scoping", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddIssue(issue("hellboy", 1, "1")))
		require.NoError(t, g.AddIssue(issue("hellboy", 2, "1")))
		own(t, g, "u1", models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"}, models.LineOriginal, models.StateOwned)

		rep, err := g.Completeness("u1", "hellboy", 1, models.LineOriginal)
		require.NoError(t, err)
		require.Equal(t, 100.0, rep.Percentage)

		rep, err = g.Completeness("u1", "hellboy", 0, models.LineOriginal)
		require.NoError(t, err)
		require.Equal(t, 50.0, rep.Percentage)
	})
}

func TestIssueNumberOrdering(t *testing.T) {
	nums := []models.IssueNumber{"2", "1", "10", "1.5", "annual"}
	models.SortIssueNumbers(nums)
	require.Equal(t, []models.IssueNumber{"1", "1.5", "2", "10", "annual"}, nums)
}
