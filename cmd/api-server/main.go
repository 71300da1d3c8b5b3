package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comicshelf/internal/api"
	"comicshelf/internal/auth"
	"comicshelf/internal/collection"
	"comicshelf/internal/events"
	"comicshelf/internal/fetch"
	"comicshelf/internal/provider"
	"comicshelf/internal/reconcile"
	"comicshelf/internal/shared"
	"comicshelf/internal/syncer"
	"comicshelf/pkg/config"
	"comicshelf/pkg/database"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config (default: embedded example)")
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

	hub := events.NewHub()
	orch := fetch.New(gated, cfg.Sync.Workers, cfg.Sync.Deadline(), logger)
	engine := reconcile.New(provider.Names(gated), graph, logger)
	sy := syncer.New(orch, engine, graph, store, hub, logger)

	tokens := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.JWTDuration())
	authH := auth.NewHandler(auth.NewRepo(db), tokens)

	srv := api.NewServer(graph, sy, authH, hub, db, logger)
	router := srv.Router()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr, "db", dbCfg.Path)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}

	// flush anything still dirty before exit
	if err := sy.Flush(shutdownCtx); err != nil {
		logger.Error("final flush", "err", err)
	}
	logger.Info("server stopped")
}
