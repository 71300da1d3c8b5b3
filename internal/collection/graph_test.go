package collection

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

func issue(series string, vol int, num models.IssueNumber) *models.Issue {
	return &models.Issue{SeriesKey: series, Volume: vol, Number: num}
}

func TestAddIssue(t *testing.T) {
	t.Run("Creates Series And Volume", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddIssue(issue("hellboy", 1, "1")))

		s, ok := g.Series("hellboy")
		require.True(t, ok)
		require.Equal(t, []int{1}, s.Volumes)
		require.Len(t, s.Issues, 1)
	})

	t.Run("Duplicate Key Rejected", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddIssue(issue("hellboy", 1, "1")))
		err := g.AddIssue(issue("hellboy", 1, "1"))
		require.ErrorIs(t, err, shared.ErrDuplicateKey)
	})

	t.Run("Same Number Different Volume OK", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddIssue(issue("hellboy", 1, "1")))
		require.NoError(t, g.AddIssue(issue("hellboy", 2, "1")))

		s, _ := g.Series("hellboy")
		require.Equal(t, []int{1, 2}, s.Volumes)
	})
}

func TestIssuesOfOrdering(t *testing.T) {
	g := NewGraph()
	for _, n := range []models.IssueNumber{"10", "1.5", "2", "1"} {
		require.NoError(t, g.AddIssue(issue("hellboy", 1, n)))
	}

	got := g.IssuesOf("hellboy", 1)
	nums := make([]models.IssueNumber, 0, len(got))
	for _, i := range got {
		nums = append(nums, i.Number)
	}
	require.Equal(t, []models.IssueNumber{"1", "1.5", "2", "10"}, nums)
}

func TestMutateIssue(t *testing.T) {
	t.Run("Creates When Absent", func(t *testing.T) {
		g := NewGraph()
		key := models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"}

		err := g.MutateIssue(key, func(i *models.Issue) error {
			i.PubDate = time.Date(1994, 3, 1, 0, 0, 0, 0, time.UTC)
			return nil
		})
		require.NoError(t, err)

		got, ok := g.Issue(key)
		require.True(t, ok)
		require.Equal(t, 1994, got.PubDate.Year())
	})

	t.Run("Serializes Writers Per Issue", func(t *testing.T) {
		g := NewGraph()
		key := models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"}

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = g.MutateIssue(key, func(i *models.Issue) error {
					// Unsynchronized read-modify-write; the per-issue lock
					// must make it safe.
					i.Editions = append(i.Editions, &models.Edition{Line: "x"})
					return nil
				})
			}()
		}
		wg.Wait()

		got, _ := g.Issue(key)
		require.Len(t, got.Editions, 50)
	})
}

func TestSetOwnership(t *testing.T) {
	key := models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"}

	newGraphWithIssue := func(t *testing.T) *Graph {
		t.Helper()
		g := NewGraph()
		require.NoError(t, g.AddIssue(issue("hellboy", 1, "1")))
		return g
	}

	t.Run("Owned", func(t *testing.T) {
		g := newGraphWithIssue(t)
		now := time.Now()
		err := g.SetOwnership(&models.OwnershipRecord{
			UserID: "u1", IssueKey: key, Line: models.LineOriginal,
			State: models.StateOwned, AcquiredAt: &now,
		})
		require.NoError(t, err)

		rec, ok := g.Ownership("u1", key, models.LineOriginal)
		require.True(t, ok)
		require.True(t, rec.Counted())
	})

	t.Run("Unknown Issue Rejected", func(t *testing.T) {
		g := NewGraph()
		err := g.SetOwnership(&models.OwnershipRecord{
			UserID: "u1", IssueKey: key, Line: models.LineOriginal, State: models.StateOwned,
		})
		require.ErrorIs(t, err, shared.ErrIssueNotFound)
	})

	t.Run("Sold Without Acquisition Rejected", func(t *testing.T) {
		g := newGraphWithIssue(t)
		err := g.SetOwnership(&models.OwnershipRecord{
			UserID: "u1", IssueKey: key, Line: models.LineOriginal, State: models.StateSold,
		})
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("Sold After Owned Carries Acquisition", func(t *testing.T) {
		g := newGraphWithIssue(t)
		acquired := time.Now().Add(-24 * time.Hour)
		require.NoError(t, g.SetOwnership(&models.OwnershipRecord{
			UserID: "u1", IssueKey: key, Line: models.LineOriginal,
			State: models.StateOwned, AcquiredAt: &acquired,
		}))

		err := g.SetOwnership(&models.OwnershipRecord{
			UserID: "u1", IssueKey: key, Line: models.LineOriginal, State: models.StateSold,
		})
		require.NoError(t, err)

		rec, _ := g.Ownership("u1", key, models.LineOriginal)
		require.Equal(t, models.StateSold, rec.State)
		require.NotNil(t, rec.DisposedAt)
		require.True(t, rec.AcquiredAt.Before(*rec.DisposedAt))
		require.False(t, rec.Counted())
	})

	t.Run("Disposal Before Acquisition Rejected", func(t *testing.T) {
		g := newGraphWithIssue(t)
		acquired := time.Now()
		disposed := acquired.Add(-time.Hour)
		err := g.SetOwnership(&models.OwnershipRecord{
			UserID: "u1", IssueKey: key, Line: models.LineOriginal,
			State: models.StateTraded, AcquiredAt: &acquired, DisposedAt: &disposed,
		})
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})
}

func TestDrain(t *testing.T) {
	g := NewGraph()
	require.True(t, g.Drain().Empty())

	require.NoError(t, g.AddIssue(issue("hellboy", 1, "1")))
	now := time.Now()
	require.NoError(t, g.SetOwnership(&models.OwnershipRecord{
		UserID: "u1",
		IssueKey: models.IssueKey{SeriesKey: "hellboy", Volume: 1, Number: "1"},
		Line:     models.LineOriginal,
		State:    models.StateOwned, AcquiredAt: &now,
	}))

	ms := g.Drain()
	require.Len(t, ms.Series, 1)
	require.Len(t, ms.Issues, 1)
	require.Len(t, ms.Ownership, 1)

	// Second drain is empty until something else changes.
	require.True(t, g.Drain().Empty())
}
