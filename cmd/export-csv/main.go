package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"comicshelf/internal/collection"
	"comicshelf/internal/shared"
	"comicshelf/pkg/config"
	"comicshelf/pkg/database"
	"comicshelf/pkg/models"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to TOML config (default: embedded example)")
		completeness  = flag.String("completeness", "data/completeness.csv", "output CSV path for completeness reports")
		ownershipPath = flag.String("ownership", "data/ownership.csv", "output CSV path for ownership records")
		userFlag      = flag.String("user", "", "restrict to one username (default: all users)")
	)
	flag.Parse()

	logger := shared.NewLogger(os.Stderr)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal("load config", "err", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbCfg := database.Config{Path: cfg.Database.Path}
	if dbCfg.Path == "" {
		dbCfg = database.DefaultConfig()
	}
	db, err := database.Open(dbCfg)
	if err != nil {
		logger.Fatal("open database", "err", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Fatal("migrate database", "err", err)
	}

	graph, err := collection.NewStore(db).LoadGraph(ctx)
	if err != nil {
		logger.Fatal("load collection graph", "err", err)
	}

	users, err := listUsers(ctx, db, *userFlag)
	if err != nil {
		logger.Fatal("list users", "err", err)
	}
	if len(users) == 0 {
		logger.Fatal("no matching users")
	}

	if err := exportCompleteness(graph, users, *completeness); err != nil {
		logger.Fatal("export completeness", "err", err)
	}
	if err := exportOwnership(graph, users, *ownershipPath); err != nil {
		logger.Fatal("export ownership", "err", err)
	}

	logger.Info("export complete", "completeness", *completeness, "ownership", *ownershipPath)
}

type user struct {
	ID       string
	Username string
}

func listUsers(ctx context.Context, db *sql.DB, username string) ([]user, error) {
	query := `SELECT id, username FROM users ORDER BY username`
	args := []any{}
	if username != "" {
		query = `SELECT id, username FROM users WHERE username = ?`
		args = append(args, username)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []user
	for rows.Next() {
		var u user
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func exportCompleteness(graph *collection.Graph, users []user, outPath string) error {
	w, f, err := openCSV(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := w.Write([]string{"username", "series_key", "line", "owned", "total", "percentage", "missing_issues"}); err != nil {
		return err
	}

	keys := graph.SeriesKeys()
	sort.Strings(keys)

	for _, u := range users {
		for _, key := range keys {
			for _, line := range seriesLines(graph, key) {
				report, err := graph.Completeness(u.ID, key, 0, line)
				if err != nil {
					return err
				}
				missing := make([]string, 0, len(report.Missing))
				for _, n := range report.Missing {
					missing = append(missing, string(n))
				}
				if err := w.Write([]string{
					u.Username,
					key,
					line,
					strconv.Itoa(report.OwnedCount),
					strconv.Itoa(report.TotalCount),
					fmt.Sprintf("%.2f", report.Percentage),
					strings.Join(missing, ";"),
				}); err != nil {
					return err
				}
			}
		}
	}

	w.Flush()
	return w.Error()
}

func exportOwnership(graph *collection.Graph, users []user, outPath string) error {
	w, f, err := openCSV(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := w.Write([]string{"username", "issue_key", "line", "state", "acquired_at", "disposed_at"}); err != nil {
		return err
	}

	keys := graph.SeriesKeys()
	sort.Strings(keys)

	for _, u := range users {
		for _, key := range keys {
			records := graph.OwnershipOf(u.ID, key)
			sort.Slice(records, func(i, j int) bool {
				return records[i].IssueKey.String() < records[j].IssueKey.String()
			})
			for _, rec := range records {
				if err := w.Write([]string{
					u.Username,
					rec.IssueKey.String(),
					rec.Line,
					rec.State,
					formatTime(rec.AcquiredAt),
					formatTime(rec.DisposedAt),
				}); err != nil {
					return err
				}
			}
		}
	}

	w.Flush()
	return w.Error()
}

// seriesLines returns the distinct edition lines present in one series.
func seriesLines(graph *collection.Graph, seriesKey string) []string {
	seen := map[string]struct{}{}
	for _, issue := range graph.IssuesOf(seriesKey, 0) {
		for _, ed := range issue.Editions {
			seen[ed.Line] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return []string{models.LineOriginal}
	}
	lines := make([]string, 0, len(seen))
	for l := range seen {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return lines
}

func openCSV(outPath string) (*csv.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, err
	}
	return csv.NewWriter(f), f, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
