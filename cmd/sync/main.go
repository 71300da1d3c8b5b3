package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"comicshelf/internal/collection"
	"comicshelf/internal/fetch"
	"comicshelf/internal/provider"
	"comicshelf/internal/reconcile"
	"comicshelf/internal/shared"
	"comicshelf/internal/syncer"
	"comicshelf/pkg/config"
	"comicshelf/pkg/database"
	"comicshelf/pkg/models"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config (default: embedded example)")
	seriesFlag := flag.String("series", "", "comma-separated series keys (default: [sync].series from config)")
	numbersFlag := flag.String("numbers", "", `issue numbers to sync, e.g. "1,2,5" or "1-25" (default: issues already in the collection)`)
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

	series := cfg.Sync.Series
	if *seriesFlag != "" {
		series = splitList(*seriesFlag)
	}
	if len(series) == 0 {
		logger.Fatal("no series to sync: pass -series or set [sync].series in config")
	}

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
	graph, err := store.LoadGraph(context.Background())
	if err != nil {
		logger.Fatal("load collection graph", "err", err)
	}

	gated, err := provider.FromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("configure providers", "err", err)
	}
	orch := fetch.New(gated, cfg.Sync.Workers, cfg.Sync.Deadline(), logger)
	engine := reconcile.New(provider.Names(gated), graph, logger)
	sy := syncer.New(orch, engine, graph, store, nil, logger)

	explicit, err := parseNumbers(*numbersFlag)
	if err != nil {
		logger.Fatal("parse -numbers", "err", err)
	}

	batch := make(map[string][]models.IssueNumber, len(series))
	for _, key := range series {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		numbers := explicit
		if len(numbers) == 0 {
			for _, issue := range graph.IssuesOf(key, 0) {
				numbers = append(numbers, issue.Number)
			}
		}
		if len(numbers) == 0 {
			logger.Warn("nothing to sync for series", "series", key)
			continue
		}
		batch[key] = numbers
	}
	if len(batch) == 0 {
		logger.Fatal("nothing to sync")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sums, err := sy.SyncAll(ctx, batch)
	for _, sum := range sums {
		logger.Info("synced",
			"series", sum.SeriesKey,
			"editions", sum.Editions,
			"conflicts", sum.Conflicts,
			"failed", len(sum.Failed))
	}
	if err != nil {
		logger.Fatal("sync", "err", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseNumbers accepts "1,2,5.5" and integer ranges like "1-25".
func parseNumbers(s string) ([]models.IssueNumber, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var out []models.IssueNumber
	for _, part := range splitList(s) {
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			out = append(out, models.IssueNumber(part))
			continue
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("bad range %q: %w", part, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("bad range %q: %w", part, err)
		}
		if end < start {
			return nil, fmt.Errorf("bad range %q: end before start", part)
		}
		for n := start; n <= end; n++ {
			out = append(out, models.IssueNumber(strconv.Itoa(n)))
		}
	}
	return out, nil
}
