package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/harper/dispatch/internal/api"
	"github.com/harper/dispatch/internal/eventstore"
	"github.com/harper/dispatch/internal/serverdb"
)

func main() {
	// Route to admin subcommands if present
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		runAdmin(os.Args[2:])
		return
	}

	cfg := api.LoadConfig()

	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	if cfg.JWTSecret == "" {
		// No secret means a local dev stack: sign with a fixed secret and
		// accept the CLI's baked anon key.
		cfg.JWTSecret = "dispatch-local-dev-secret"
		cfg.DevAnonKey = "dispatch-local-dev-anon-key"
		slog.Warn("DISPATCHD_JWT_SECRET not set, running in local dev mode")
	}

	store, err := serverdb.Open(filepath.Join(cfg.DataDir, "server.db"))
	if err != nil {
		slog.Error("open server db", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var events eventstore.Store
	if cfg.DatabaseURL != "" {
		pg, err := eventstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("connect postgres", "err", err)
			os.Exit(1)
		}
		if err := pg.Init(ctx); err != nil {
			slog.Error("init event log schema", "err", err)
			os.Exit(1)
		}
		events = pg
		slog.Info("event log backend", "driver", "postgres")
	} else {
		events = api.NewTeamStorePool(cfg.DataDir)
		slog.Info("event log backend", "driver", "sqlite", "data_dir", cfg.DataDir)
	}
	defer events.Close()

	srv, err := api.NewServer(cfg, store, events)
	if err != nil {
		slog.Error("create server", "err", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started", "addr", cfg.ListenAddr)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}
