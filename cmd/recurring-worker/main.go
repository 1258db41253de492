package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"outgo/internal/config"
	"outgo/internal/core"
	"outgo/internal/events"
	applog "outgo/internal/log"
	"outgo/internal/services"
	"outgo/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting recurring-worker")

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
	hour, minute, err := config.ParseWallClock(cfg.SweepAt)
	if err != nil {
		logger.Error("Invalid sweep time", "sweep_at", cfg.SweepAt, "error", err)
		os.Exit(1)
	}

	sweeper := services.NewSweeper(repo, repo, repo, publisher, services.NewPlanLocks(), cfg.SweepConcurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Sweep scheduled",
		"at", cfg.SweepAt,
		"timezone", cfg.SweepTimezone,
		"sqlite_db", cfg.SQLiteDBPath)

	// Run an initial sweep on startup so a worker that was down over a tick
	// catches up immediately.
	runSweep(ctx, sweeper, loc, logger)

	go func() {
		for {
			timer := time.NewTimer(untilNextTick(time.Now().In(loc), hour, minute))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				runSweep(ctx, sweeper, loc, logger)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Recurring-worker shutdown complete")
}

func runSweep(ctx context.Context, sweeper *services.Sweeper, loc *time.Location, logger *applog.Logger) {
	today := core.DateOf(time.Now().In(loc))
	count, err := sweeper.RunDueSweep(ctx, today)
	if err != nil {
		logger.Error("Sweep failed", "today", today.String(), "error", err)
		return
	}
	logger.Info("Sweep finished", "today", today.String(), "entries_created", count)
}

// untilNextTick returns the duration until the next occurrence of the
// hour:minute wall clock in now's location, always in the future.
func untilNextTick(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
