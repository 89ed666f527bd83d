package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dan9191/transaction-service/internal/config"
	"github.com/Dan9191/transaction-service/internal/logging"
	"github.com/Dan9191/transaction-service/internal/reconcile"
	"github.com/Dan9191/transaction-service/internal/repository"
	"github.com/Dan9191/transaction-service/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
)

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Stdout)

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger = logging.New(cfg.LogLevel, os.Stdout)
	if cfg.Storage != config.StoragePostgres {
		logger.Fatalf("Reconciler requires STORAGE=%s", config.StoragePostgres)
	}

	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	var notifier reconcile.Notifier
	if len(cfg.Reconcile.Recipients) > 0 {
		notifier = email.NewSender(cfg.Reconcile, logger)
	}
	r := reconcile.New(repository.NewPostgresTransactionStore(db), notifier, cfg.Reconcile.Lookback, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New()
	if _, err := c.AddFunc(cfg.Reconcile.Schedule, func() {
		if _, err := r.Run(ctx); err != nil {
			logger.Errorf("Reconciliation failed: %v", err)
		}
	}); err != nil {
		logger.Fatalf("Invalid RECONCILE_SCHEDULE %q: %v", cfg.Reconcile.Schedule, err)
	}

	logger.Infof("Reconciler started with schedule %q", cfg.Reconcile.Schedule)
	c.Start()
	<-ctx.Done()

	logger.Info("Stopping reconciler...")
	<-c.Stop().Done()
}
