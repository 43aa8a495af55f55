package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/torqueops/dispatch/internal/bidding"
	"github.com/torqueops/dispatch/internal/commission"
	"github.com/torqueops/dispatch/internal/config"
	"github.com/torqueops/dispatch/internal/dispatch"
	"github.com/torqueops/dispatch/internal/httpapi"
	"github.com/torqueops/dispatch/internal/jobs"
	"github.com/torqueops/dispatch/internal/notify"
	"github.com/torqueops/dispatch/internal/settlement"
	"github.com/torqueops/dispatch/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting dispatch engine",
		"environment", cfg.Environment,
		"port", cfg.Port,
	)

	// Initialize store: MongoDB when configured, in-memory otherwise
	var st store.Store
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		clientOpts := options.Client().ApplyURI(cfg.MongoURI)
		mongoClient, err := mongo.Connect(ctx, clientOpts)
		if err != nil {
			slog.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}

		if err := mongoClient.Ping(ctx, nil); err != nil {
			slog.Error("failed to ping mongodb", "error", err)
			os.Exit(1)
		}

		mongoStore := store.NewMongoStore(mongoClient, cfg.MongoDB)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to create indexes", "error", err)
		}
		st = mongoStore

		slog.Info("using mongodb store", "db", cfg.MongoDB)

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(ctx); err != nil {
				slog.Error("failed to disconnect mongodb", "error", err)
			}
		}()
	} else {
		st = store.NewMemoryStore()
		slog.Warn("MONGO_URI not set, using in-memory store")
	}

	// Initialize services
	notifier := notify.NewNotifier(
		notify.NewResilientSender("sms", notify.NewConsoleSender("sms"), st, cfg.Notify),
		notify.NewResilientSender("push", notify.NewConsoleSender("push"), st, cfg.Notify),
	)
	engine := commission.NewEngine(cfg.Commission)
	board := dispatch.NewBoard(st, cfg.SLA, cfg.Dispatch)
	jobService := jobs.New(st, board, notifier, cfg.PortalBaseURL)
	bidService := bidding.New(st, notifier, cfg.PortalBaseURL)
	settlementService := settlement.New(st, engine, settlement.NewSimulatedProcessor(), notifier)

	// Setup HTTP router
	router := httpapi.NewRouter(jobService, bidService, settlementService, board, st)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
