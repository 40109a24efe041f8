package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prepdeck/prepdeck/internal/api"
	"github.com/prepdeck/prepdeck/internal/config"
	"github.com/prepdeck/prepdeck/internal/events"
	"github.com/prepdeck/prepdeck/internal/genclient"
	"github.com/prepdeck/prepdeck/internal/orchestrator"
	"github.com/prepdeck/prepdeck/internal/profile"
	"github.com/prepdeck/prepdeck/internal/realtime"
	"github.com/prepdeck/prepdeck/internal/session"
	"github.com/prepdeck/prepdeck/pkg/database"
	"github.com/prepdeck/prepdeck/pkg/kafka"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()
	logger := slog.Default()

	// Initialize database clients
	db, err := database.NewClients(cfg.Database.URL, cfg.Redis.Addr)
	if err != nil {
		slog.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.DB.Close()
	slog.Info("✅ Connected to databases")

	// Initialize Kafka producer
	producer, err := kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.RetryMax, cfg.Kafka.RetryBackoff)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	slog.Info("✅ Connected to Kafka")

	// Profile persistence and schema
	store := profile.NewStore(db.DB, db.Redis, logger)
	if err := store.CreateProfilesTable(); err != nil {
		slog.Error("Failed to create profiles table", "error", err)
		os.Exit(1)
	}
	cache := profile.NewCache(store, cfg.Generator.DailyLimit)

	// Identity provider
	sessions := session.NewStore(session.NewGotrueAuth(cfg.Supabase.URL, cfg.Supabase.Key), logger)
	if err := sessions.Bootstrap(); err != nil {
		slog.Error("Failed to reach identity provider", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Identity provider reachable")

	// Per-session orchestrator runtimes
	backend := genclient.NewClient(cfg.Generator.BaseURL, cfg.Generator.RequestTimeout, logger)
	sink := events.NewProducer(producer, cfg.Kafka.Topic, logger)
	subscriber := realtime.NewSubscriber(db.Redis, logger)
	manager := orchestrator.NewManager(sessions, cache, store, backend, sink, subscriber, cfg.Generator.PollInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go manager.Run(ctx)

	server := api.NewServer(cfg, sessions, store, cache, manager, logger)

	// Shut the gateway down when the signal lands; Run tears down the
	// session runtimes on the same ctx.
	go func() {
		<-ctx.Done()
		if err := server.Shutdown(); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
