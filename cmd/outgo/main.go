package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"outgo/internal/config"
	"outgo/internal/events"
	apphttp "outgo/internal/http"
	applog "outgo/internal/log"
	"outgo/internal/services"
	"outgo/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentApp)
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional: without it entries are still saved, only the
	// post-commit events are skipped.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, entry events will not be published")
	}

	loc := cfg.SweepLocation()

	// The reconciler and the sweeper share one lock registry so a manual
	// entry and a sweep never advance the same plan concurrently.
	locks := services.NewPlanLocks()
	reconciler := services.NewReconciler(repo, repo, locks)
	sweeper := services.NewSweeper(repo, repo, repo, publisher, locks, cfg.SweepConcurrency)
	lifecycle := services.NewLifecycle(repo, loc)
	ledger := services.NewLedgerService(repo, reconciler, publisher)
	goals := services.NewGoalService(repo, repo, repo, loc)

	srv := apphttp.NewServer(":"+cfg.Port, ledger, lifecycle, sweeper, goals, loc, logger.WithComponent(applog.ComponentHTTP))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting outgo server",
		"port", cfg.Port,
		"db", cfg.SQLiteDBPath,
		"timezone", cfg.SweepTimezone)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
