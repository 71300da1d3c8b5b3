package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"comicshelf/pkg/models"
)

// Store persists the collection graph to sqlite. The graph stays the owner
// of all in-memory state; the store only loads it at startup and flushes
// mutation sets produced by Graph.Drain.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// LoadGraph reads the full collection model from the database.
func (s *Store) LoadGraph(ctx context.Context) (*Graph, error) {
	g := NewGraph()

	rows, err := s.DB.QueryContext(ctx, `SELECT key, name FROM series`)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}
	for rows.Next() {
		var key, name string
		if err := rows.Scan(&key, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan series: %w", err)
		}
		g.EnsureSeries(key, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("series rows: %w", err)
	}

	if err := s.loadIssues(ctx, g); err != nil {
		return nil, err
	}
	if err := s.loadEditions(ctx, g); err != nil {
		return nil, err
	}
	if err := s.loadOwnership(ctx, g); err != nil {
		return nil, err
	}

	// Loading is not a mutation.
	g.Drain()
	return g, nil
}

func (s *Store) loadIssues(ctx context.Context, g *Graph) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT series_key, volume, number, pub_date FROM issues`)
	if err != nil {
		return fmt.Errorf("load issues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			issue   models.Issue
			number  string
			pubDate sql.NullTime
		)
		if err := rows.Scan(&issue.SeriesKey, &issue.Volume, &number, &pubDate); err != nil {
			return fmt.Errorf("scan issue: %w", err)
		}
		issue.Number = models.IssueNumber(number)
		if pubDate.Valid {
			issue.PubDate = pubDate.Time
		}
		if err := g.AddIssue(&issue); err != nil {
			return fmt.Errorf("add issue %s: %w", issue.Key(), err)
		}
	}
	return rows.Err()
}

func (s *Store) loadEditions(ctx context.Context, g *Graph) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT series_key, volume, number, line, title, cover_date, creators, provenance, cover_url, updated_at
		FROM editions
	`)
	if err != nil {
		return fmt.Errorf("load editions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key          models.IssueKey
			number       string
			ed           models.Edition
			coverDate    sql.NullTime
			creatorsJSON string
			provJSON     string
		)
		if err := rows.Scan(&key.SeriesKey, &key.Volume, &number, &ed.Line, &ed.Title,
			&coverDate, &creatorsJSON, &provJSON, &ed.CoverURL, &ed.UpdatedAt); err != nil {
			return fmt.Errorf("scan edition: %w", err)
		}
		key.Number = models.IssueNumber(number)
		ed.IssueKey = key
		if coverDate.Valid {
			ed.CoverDate = coverDate.Time
		}
		if err := json.Unmarshal([]byte(creatorsJSON), &ed.Creators); err != nil {
			return fmt.Errorf("decode creators for %s/%s: %w", key, ed.Line, err)
		}
		if err := json.Unmarshal([]byte(provJSON), &ed.Provenance); err != nil {
			return fmt.Errorf("decode provenance for %s/%s: %w", key, ed.Line, err)
		}

		edition := ed
		if err := g.MutateIssue(key, func(issue *models.Issue) error {
			issue.Editions = append(issue.Editions, &edition)
			return nil
		}); err != nil {
			return fmt.Errorf("attach edition %s/%s: %w", key, ed.Line, err)
		}
	}
	return rows.Err()
}

func (s *Store) loadOwnership(ctx context.Context, g *Graph) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT user_id, series_key, volume, number, line, state, acquired_at, disposed_at, updated_at
		FROM ownership
	`)
	if err != nil {
		return fmt.Errorf("load ownership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      models.OwnershipRecord
			number   string
			acquired sql.NullTime
			disposed sql.NullTime
		)
		if err := rows.Scan(&rec.UserID, &rec.IssueKey.SeriesKey, &rec.IssueKey.Volume, &number,
			&rec.Line, &rec.State, &acquired, &disposed, &rec.UpdatedAt); err != nil {
			return fmt.Errorf("scan ownership: %w", err)
		}
		rec.IssueKey.Number = models.IssueNumber(number)
		if acquired.Valid {
			t := acquired.Time
			rec.AcquiredAt = &t
		}
		if disposed.Valid {
			t := disposed.Time
			rec.DisposedAt = &t
		}
		record := rec
		if err := g.SetOwnership(&record); err != nil {
			return fmt.Errorf("restore ownership %s: %w", rec.IssueKey, err)
		}
	}
	return rows.Err()
}

// SaveChanges flushes one mutation set to the database in a single
// transaction, upserting only the records that changed.
func (s *Store) SaveChanges(ctx context.Context, g *Graph, ms *MutationSet) error {
	if ms.Empty() {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for key := range ms.Series {
		series, ok := g.Series(key)
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO series (key, name) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET name = excluded.name
		`, series.Key, series.Name); err != nil {
			return fmt.Errorf("upsert series %s: %w", key, err)
		}
	}

	for key := range ms.Issues {
		issue, ok := g.Issue(key)
		if !ok {
			continue
		}
		if err := saveIssue(ctx, tx, issue); err != nil {
			return err
		}
	}

	for key := range ms.Ownership {
		rec, ok := g.Ownership(key.UserID, key.Issue, key.Line)
		if !ok {
			continue
		}
		if err := saveOwnership(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func saveIssue(ctx context.Context, tx *sql.Tx, issue *models.Issue) error {
	var pubDate any
	if !issue.PubDate.IsZero() {
		pubDate = issue.PubDate
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO issues (series_key, volume, number, pub_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(series_key, volume, number) DO UPDATE SET pub_date = excluded.pub_date
	`, issue.SeriesKey, issue.Volume, string(issue.Number), pubDate); err != nil {
		return fmt.Errorf("upsert issue %s: %w", issue.Key(), err)
	}

	for _, ed := range issue.Editions {
		creatorsJSON, err := json.Marshal(ed.Creators)
		if err != nil {
			return fmt.Errorf("marshal creators for %s: %w", issue.Key(), err)
		}
		provJSON, err := json.Marshal(ed.Provenance)
		if err != nil {
			return fmt.Errorf("marshal provenance for %s: %w", issue.Key(), err)
		}
		var coverDate any
		if !ed.CoverDate.IsZero() {
			coverDate = ed.CoverDate
		}
		updated := ed.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO editions (series_key, volume, number, line, title, cover_date, creators, provenance, cover_url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(series_key, volume, number, line) DO UPDATE SET
			  title = excluded.title,
			  cover_date = excluded.cover_date,
			  creators = excluded.creators,
			  provenance = excluded.provenance,
			  cover_url = excluded.cover_url,
			  updated_at = excluded.updated_at
		`, issue.SeriesKey, issue.Volume, string(issue.Number), ed.Line, ed.Title,
			coverDate, string(creatorsJSON), string(provJSON), ed.CoverURL, updated); err != nil {
			return fmt.Errorf("upsert edition %s/%s: %w", issue.Key(), ed.Line, err)
		}
	}
	return nil
}

func saveOwnership(ctx context.Context, tx *sql.Tx, rec *models.OwnershipRecord) error {
	var acquired, disposed any
	if rec.AcquiredAt != nil {
		acquired = *rec.AcquiredAt
	}
	if rec.DisposedAt != nil {
		disposed = *rec.DisposedAt
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ownership (user_id, series_key, volume, number, line, state, acquired_at, disposed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, series_key, volume, number, line) DO UPDATE SET
		  state = excluded.state,
		  acquired_at = excluded.acquired_at,
		  disposed_at = excluded.disposed_at,
		  updated_at = excluded.updated_at
	`, rec.UserID, rec.IssueKey.SeriesKey, rec.IssueKey.Volume, string(rec.IssueKey.Number),
		rec.Line, rec.State, acquired, disposed, rec.UpdatedAt); err != nil {
		return fmt.Errorf("upsert ownership %s: %w", rec.IssueKey, err)
	}
	return nil
}
