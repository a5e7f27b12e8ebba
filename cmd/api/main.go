package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/botfleet/internal/api"
	"github.com/nikhilbhutani/botfleet/internal/api/handlers"
	"github.com/nikhilbhutani/botfleet/internal/cache"
	"github.com/nikhilbhutani/botfleet/internal/config"
	"github.com/nikhilbhutani/botfleet/internal/database"
	"github.com/nikhilbhutani/botfleet/internal/llm"
	"github.com/nikhilbhutani/botfleet/internal/queue"
	"github.com/nikhilbhutani/botfleet/internal/scan"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/store/memory"
	"github.com/nikhilbhutani/botfleet/internal/store/postgres"
	"github.com/nikhilbhutani/botfleet/internal/tools"
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
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Pinger{}

	// Postgres when configured; otherwise an in-memory store seeded with
	// the development organization.
	var (
		st      store.Store
		durable bool
	)
	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := database.RunMigrations(ctx, db, os.DirFS(cfg.Database.MigrationsPath)); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		st, durable = postgres.New(db), true
	} else {
		mem := memory.New()
		mem.AddOrg(cfg.Server.DevOrgID, "dev")
		st = mem
		slog.Warn("DATABASE_URL not set, using in-memory store", "org_id", cfg.Server.DevOrgID)
	}
	checks["database"] = st

	// Redis is optional: without it idempotency keys are refused and
	// webhooks are delivered in-process.
	var claims webhook.Claims
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	redisUp := rdb.Ping(ctx).Err() == nil
	if redisUp {
		c := cache.NewCache(rdb)
		claims = c
		checks["redis"] = c
	} else {
		slog.Warn("redis unavailable, running without cache", "addr", cfg.Redis.Addr)
	}

	// The worker reads endpoints from postgres, so queued delivery needs both.
	var q webhook.Enqueuer
	if durable && redisUp {
		qc := queue.NewClient(cfg.Redis, cfg.Webhook)
		defer qc.Close()
		q = qc
	} else {
		lq := webhook.NewLocalQueue(webhook.NewDeliverer(st, cfg.Webhook.DeliveryTimeout), cfg.Webhook.DeliveryTimeout+5*time.Second)
		defer lq.Close()
		q = lq
	}

	dispatcher := tools.NewDispatcher(tools.Deps{
		Store:     st,
		Webhooks:  webhook.NewService(claims, cfg.Webhook.IdempotencyTTL),
		Publisher: webhook.NewPublisher(st, q),
		Scanner:   scan.NewRunner(cfg.Scanner.URL, cfg.Scanner.Timeout),
		InviteTTL: cfg.Invitations.TTL,
	})

	router := api.NewRouter(cfg, api.Deps{
		Dispatcher: dispatcher,
		Gateway:    llm.NewGateway(cfg.LLM),
		Checks:     checks,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(ctx),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Scanner.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "durable", durable, "redis", redisUp)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
