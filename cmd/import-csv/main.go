package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"comicshelf/internal/collection"
	"comicshelf/internal/shared"
	"comicshelf/pkg/config"
	"comicshelf/pkg/database"
	"comicshelf/pkg/models"
)

// Seeds the collection graph from a CSV of issues, so a shelf can be
// tracked before any provider sync has run. Expected columns:
// series_key, series_name, volume, number, pub_date (RFC3339, optional).
func main() {
	var (
		configPath = flag.String("config", "", "path to TOML config (default: embedded example)")
		issuesIn   = flag.String("issues", "data/issues.csv", "input CSV path for issues")
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
	if err := database.EnsureDataDir(dbCfg); err != nil {
		logger.Fatal("prepare data dir", "err", err)
	}
	db, err := database.Open(dbCfg)
	if err != nil {
		logger.Fatal("open database", "err", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Fatal("migrate database", "err", err)
	}

	store := collection.NewStore(db)
	graph, err := store.LoadGraph(ctx)
	if err != nil {
		logger.Fatal("load collection graph", "err", err)
	}

	added, skipped, err := importIssues(graph, *issuesIn)
	if err != nil {
		logger.Fatal("import issues", "err", err)
	}

	ms := graph.Drain()
	if !ms.Empty() {
		if err := store.SaveChanges(ctx, graph, ms); err != nil {
			logger.Fatal("persist imported issues", "err", err)
		}
	}

	logger.Info("import complete", "file", *issuesIn, "added", added, "skipped", skipped)
}

func importIssues(graph *collection.Graph, path string) (added, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return 0, 0, err
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return added, skipped, err
		}
		if len(row) == 0 {
			continue
		}

		seriesKey := valueAt(header, row, "series_key")
		number := valueAt(header, row, "number")
		if seriesKey == "" || number == "" {
			skipped++
			continue
		}

		volume := 1
		if raw := valueAt(header, row, "volume"); raw != "" {
			volume, err = strconv.Atoi(raw)
			if err != nil {
				return added, skipped, fmt.Errorf("parse volume for %s/%s: %w", seriesKey, number, err)
			}
		}

		var pubDate time.Time
		if raw := valueAt(header, row, "pub_date"); raw != "" {
			pubDate, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				return added, skipped, fmt.Errorf("parse pub_date for %s/%s: %w", seriesKey, number, err)
			}
		}

		if name := valueAt(header, row, "series_name"); name != "" {
			graph.EnsureSeries(seriesKey, name)
		}

		issue := &models.Issue{
			SeriesKey: seriesKey,
			Volume:    volume,
			Number:    models.IssueNumber(number),
			PubDate:   pubDate,
		}
		if err := graph.AddIssue(issue); err != nil {
			if errors.Is(err, shared.ErrDuplicateKey) {
				skipped++
				continue
			}
			return added, skipped, err
		}
		added++
	}
	return added, skipped, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
