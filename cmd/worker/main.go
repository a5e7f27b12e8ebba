package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/botfleet/internal/config"
	"github.com/nikhilbhutani/botfleet/internal/database"
	"github.com/nikhilbhutani/botfleet/internal/queue"
	"github.com/nikhilbhutani/botfleet/internal/queue/workers"
	"github.com/nikhilbhutani/botfleet/internal/store/postgres"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("DATABASE_URL is required for the worker")
		os.Exit(1)
	}

	db, err := database.NewPool(context.Background(), cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Webhook.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	deliverer := webhook.NewDeliverer(postgres.New(db), cfg.Webhook.DeliveryTimeout)
	registry.Register(queue.TypeWebhookDeliver, asynq.HandlerFunc(workers.NewWebhookWorker(deliverer).ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Webhook.Concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
