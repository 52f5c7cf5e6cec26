package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quorum-ai/quorumd/internal/api"
	"github.com/quorum-ai/quorumd/internal/backend"
	"github.com/quorum-ai/quorumd/internal/cache"
	"github.com/quorum-ai/quorumd/internal/cohort"
	"github.com/quorum-ai/quorumd/internal/config"
	"github.com/quorum-ai/quorumd/internal/dispatch"
	"github.com/quorum-ai/quorumd/internal/engine"
	"github.com/quorum-ai/quorumd/internal/events"
	"github.com/quorum-ai/quorumd/internal/history"
	"github.com/quorum-ai/quorumd/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("quorumd starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cohort tables
	table := cohort.Default()
	if cfg.CohortFile != "" {
		t, err := cohort.Load(cfg.CohortFile)
		if err != nil {
			slog.Error("failed to load cohort file", "path", cfg.CohortFile, "error", err)
			os.Exit(1)
		}
		table = t
		slog.Info("cohort tables loaded", "path", cfg.CohortFile, "groups", len(table.Groups))
	}

	// Backend credentials
	if cfg.GeminiAPIKey == "" {
		slog.Error("GEMINI_API_KEY is required")
		os.Exit(1)
	}
	if cfg.OpenRouterAPIKey == "" {
		slog.Error("OPENROUTER_API_KEY is required")
		os.Exit(1)
	}
	registry := backend.BuildRegistry(table.Providers, cfg.GeminiAPIKey, cfg.OpenRouterAPIKey)
	slog.Info("backends registered", "backends", registry.IDs())

	// Remote store (optional — unreachable means cache-only mode)
	var remote history.Remote
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set — running cache-only")
	} else if db, err := store.New(ctx, cfg.DatabaseURL); err != nil {
		slog.Warn("database unreachable — running cache-only", "error", err)
	} else {
		defer db.Close()
		remote = db
		slog.Info("database connected")
	}

	// Local cache
	local, err := cache.Open(cfg.CachePath)
	if err != nil {
		slog.Error("failed to open cache", "path", cfg.CachePath, "error", err)
		os.Exit(1)
	}
	defer local.Close()
	slog.Info("cache ready", "path", cfg.CachePath)

	// NATS (optional)
	publisher, err := events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Warn("NATS unreachable — events disabled", "error", err)
		publisher = nil
	} else if publisher == nil {
		slog.Warn("NATS_URL not set — events disabled")
	} else {
		defer publisher.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	gateway := history.NewGateway(remote, local, slog.Default())
	dispatcher := dispatch.New(registry, slog.Default())
	eng := engine.New(table, registry, dispatcher, gateway, publisher, slog.Default())

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, eng, table, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("quorumd ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("quorumd stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
