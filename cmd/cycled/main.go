// Command cycled runs the exchange and task worker cycles on a cron
// schedule, fanning out over every user with pending work.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ranklite/backlink-engine/internal/bootstrap"
	"github.com/ranklite/backlink-engine/internal/logger"
)

const (
	cycleTimeout       = 5 * time.Minute
	maintenanceTimeout = 30 * time.Minute

	// maintenanceSchedule runs the nightly sweep during low-traffic hours.
	maintenanceSchedule = "0 3 * * *"
	// linkRecheckAge is how long a link may go without re-verification.
	linkRecheckAge = 7 * 24 * time.Hour
	// linkRecheckBatch bounds how many links one sweep re-verifies.
	linkRecheckBatch = 500
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := bootstrap.CreateLogger(cfg, "dev")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := bootstrap.SetupDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	publisher := bootstrap.SetupEventPublisher(cfg, log)
	engine := bootstrap.SetupEngine(cfg, db, publisher, log)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Engine.CycleSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()
		runCycles(ctx, engine, log)
	})
	if err != nil {
		return fmt.Errorf("schedule cycles: %w", err)
	}

	_, err = scheduler.AddFunc(maintenanceSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		defer cancel()
		runMaintenance(ctx, engine, log)
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}

	log.Info("Cycle daemon started",
		logger.String("schedule", cfg.Engine.CycleSchedule),
	)
	scheduler.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	log.Info("Shutdown signal received", logger.String("signal", sig.String()))
	<-scheduler.Stop().Done()
	log.Info("Cycle daemon stopped")
	return nil
}

// runCycles drives one exchange cycle per auto-exchange user and one task
// cycle per user with due tasks. Per-user failures are logged, never fatal.
func runCycles(ctx context.Context, engine *bootstrap.Engine, log logger.Logger) {
	exchangeUsers, err := engine.Participants.UsersWithAutoExchange(ctx)
	if err != nil {
		log.Error("Failed to list auto-exchange users", logger.Error(err))
	}
	for _, userID := range exchangeUsers {
		result, runErr := engine.Exchange.Run(ctx, userID)
		if runErr != nil {
			log.Error("Exchange cycle failed",
				logger.String("user_id", userID), logger.Error(runErr))
			continue
		}
		log.Debug("Exchange cycle finished",
			logger.String("user_id", userID),
			logger.String("status", result.Status),
		)
	}

	taskUsers, err := engine.Tasks.UsersWithDueTasks(ctx, time.Now())
	if err != nil {
		log.Error("Failed to list users with due tasks", logger.Error(err))
		return
	}
	for _, userID := range taskUsers {
		result, runErr := engine.Worker.RunCycle(ctx, userID)
		if runErr != nil {
			log.Error("Worker cycle failed",
				logger.String("user_id", userID), logger.Error(runErr))
			continue
		}
		log.Debug("Worker cycle finished",
			logger.String("user_id", userID),
			logger.String("status", result.Status),
		)
	}
}

// runMaintenance re-verifies stale links and reconciles credit balances.
func runMaintenance(ctx context.Context, engine *bootstrap.Engine, log logger.Logger) {
	linkStats, err := engine.Maintenance.ReverifyLinks(ctx, linkRecheckAge, linkRecheckBatch)
	if err != nil {
		log.Error("Link re-verification sweep failed", logger.Error(err))
	}
	ledgerStats, err := engine.Maintenance.ReconcileLedgers(ctx)
	if err != nil {
		log.Error("Ledger reconciliation sweep failed", logger.Error(err))
	}

	log.Info("Maintenance sweep finished",
		logger.Int("links_checked", linkStats.LinksChecked),
		logger.Int("links_broken", linkStats.LinksBroken),
		logger.Int("reconciled", ledgerStats.Reconciled),
		logger.Int("drifted", ledgerStats.Drifted),
	)
}
