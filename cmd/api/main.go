package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/transaction-service/internal/auth"
	"github.com/Dan9191/transaction-service/internal/config"
	"github.com/Dan9191/transaction-service/internal/handler"
	"github.com/Dan9191/transaction-service/internal/logging"
	"github.com/Dan9191/transaction-service/internal/repository"
	"github.com/Dan9191/transaction-service/internal/service"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Stdout)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger = logging.New(cfg.LogLevel, os.Stdout)

	// Initialize storage
	accounts, txns, closeStore := openStores(cfg, logger)
	defer closeStore()

	// Initialize layers
	registry, err := auth.NewRegistry(cfg.Clients)
	if err != nil {
		logger.Fatalf("Failed to load API clients: %v", err)
	}
	authenticator := auth.NewAuthenticator(registry, cfg.MaxSkew)
	svc := service.NewTransactionService(accounts, txns, cfg, logger)
	h := handler.NewHandler(svc, cfg.Rules.MaxTransactionAmount, logger)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(h, authenticator, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s (storage=%s, strict rate limit=%t)", addr, cfg.Storage, cfg.RateLimit.Strict)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
}

// openStores selects the storage backend from configuration
func openStores(cfg *config.Config, logger *logrus.Logger) (repository.AccountStore, repository.TransactionStore, func()) {
	if cfg.Storage == config.StorageMemory {
		store := repository.NewMemoryStore()
		for i := range cfg.SeedAccounts {
			if err := store.Accounts().Create(context.Background(), &cfg.SeedAccounts[i]); err != nil {
				logger.Fatalf("Failed to seed account: %v", err)
			}
		}
		logger.Warnf("Using in-memory storage with %d seeded account(s), data is lost on exit", len(cfg.SeedAccounts))
		return store.Accounts(), store.Transactions(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	return repository.NewPostgresAccountStore(db), repository.NewPostgresTransactionStore(db), func() { db.Close() }
}
