package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/Dan9191/transaction-service/internal/utils"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	minRatePerMinute = 1
	maxRatePerMinute = 1000
)

// RateLimitConfig controls the per-account transaction rate limiter
type RateLimitConfig struct {
	Enabled      bool
	MaxPerMinute int
	// Strict serializes check and commit per account inside one process.
	Strict bool
}

// RulesConfig holds the balance rules enforced by the transaction engine
type RulesConfig struct {
	MinimumBalance       decimal.Decimal
	NewAccountGraceDays  int
	MaxTransactionAmount decimal.Decimal
}

// ReconcileConfig configures the reconciliation process
type ReconcileConfig struct {
	Schedule     string
	Lookback     time.Duration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	Recipients   []string
}

// Config holds application configuration
type Config struct {
	Port          string
	DBConn        string
	LogLevel      string
	Storage       string
	ClientsFile   string
	EncryptionKey string
	MaxSkew       time.Duration

	Clients   []models.Client
	RateLimit RateLimitConfig
	Rules     RulesConfig
	Reconcile ReconcileConfig

	// SeedAccounts are created at start when Storage is memory
	SeedAccounts []models.Account
}

// NewConfig loads configuration from environment variables. A .env file in
// the working directory is read first when present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Storage:       getEnv("STORAGE", StoragePostgres),
		ClientsFile:   getEnv("CLIENTS_FILE", "clients.json"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		Reconcile: ReconcileConfig{
			Schedule:     getEnv("RECONCILE_SCHEDULE", "@every 15m"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SenderEmail:  getEnv("SENDER_EMAIL", ""),
			Recipients:   splitList(getEnv("REPORT_RECIPIENTS", "")),
		},
	}

	var err error
	if cfg.MaxSkew, err = time.ParseDuration(getEnv("AUTH_MAX_SKEW", "30m")); err != nil {
		return nil, fmt.Errorf("invalid AUTH_MAX_SKEW: %w", err)
	}
	if cfg.Reconcile.Lookback, err = time.ParseDuration(getEnv("RECONCILE_LOOKBACK", "24h")); err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_LOOKBACK: %w", err)
	}
	if cfg.RateLimit.Enabled, err = strconv.ParseBool(getEnv("RATE_LIMIT_ENABLED", "true")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_ENABLED: %w", err)
	}
	if cfg.RateLimit.Strict, err = strconv.ParseBool(getEnv("RATE_LIMIT_STRICT", "false")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_STRICT: %w", err)
	}
	if cfg.RateLimit.MaxPerMinute, err = strconv.Atoi(getEnv("RATE_LIMIT_MAX_PER_MINUTE", "60")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_MAX_PER_MINUTE: %w", err)
	}
	if cfg.Rules.NewAccountGraceDays, err = strconv.Atoi(getEnv("NEW_ACCOUNT_GRACE_DAYS", "10")); err != nil {
		return nil, fmt.Errorf("invalid NEW_ACCOUNT_GRACE_DAYS: %w", err)
	}
	if cfg.Rules.MinimumBalance, err = decimal.NewFromString(getEnv("MIN_BALANCE", "100")); err != nil {
		return nil, fmt.Errorf("invalid MIN_BALANCE: %w", err)
	}
	if cfg.Rules.MaxTransactionAmount, err = decimal.NewFromString(getEnv("MAX_TRANSACTION_AMOUNT", "10000")); err != nil {
		return nil, fmt.Errorf("invalid MAX_TRANSACTION_AMOUNT: %w", err)
	}

	var raw []byte
	if inline := getEnv("API_CLIENTS", ""); inline != "" {
		raw = []byte(inline)
	} else if raw, err = os.ReadFile(cfg.ClientsFile); err != nil {
		return nil, fmt.Errorf("failed to read clients file %s: %w", cfg.ClientsFile, err)
	}
	if cfg.Clients, err = ParseClients(raw, cfg.EncryptionKey); err != nil {
		return nil, err
	}
	if cfg.SeedAccounts, err = ParseSeedAccounts(getEnv("SEED_ACCOUNTS", "")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseClients decodes a JSON client list. Secret keys carrying the sealed
// prefix are opened with encryptionKey.
func ParseClients(raw []byte, encryptionKey string) ([]models.Client, error) {
	var clients []models.Client
	if err := json.Unmarshal(raw, &clients); err != nil {
		return nil, fmt.Errorf("failed to parse clients: %w", err)
	}
	for i := range clients {
		if !utils.IsSealed(clients[i].SecretKey) {
			continue
		}
		if encryptionKey == "" {
			return nil, fmt.Errorf("client %q has a sealed secret but ENCRYPTION_KEY is not set", clients[i].Name)
		}
		key, err := utils.ParseKey(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
		}
		secret, err := utils.OpenSecret(clients[i].SecretKey, key)
		if err != nil {
			return nil, fmt.Errorf("failed to open secret for client %q: %w", clients[i].Name, err)
		}
		clients[i].SecretKey = secret
	}
	return clients, nil
}

// ParseSeedAccounts parses a comma separated list of NUMBER:BALANCE pairs
func ParseSeedAccounts(raw string) ([]models.Account, error) {
	var accounts []models.Account
	for _, item := range splitList(raw) {
		number, balance, ok := strings.Cut(item, ":")
		if !ok || strings.TrimSpace(number) == "" {
			return nil, fmt.Errorf("invalid SEED_ACCOUNTS entry %q", item)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(balance))
		if err != nil || amount.IsNegative() {
			return nil, fmt.Errorf("invalid balance in SEED_ACCOUNTS entry %q", item)
		}
		accounts = append(accounts, models.Account{AccountNumber: strings.TrimSpace(number), Balance: amount})
	}
	return accounts, nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	}
	if c.Storage == StoragePostgres && c.DBConn == "" {
		return fmt.Errorf("DB_CONN is required")
	}
	if c.RateLimit.MaxPerMinute < minRatePerMinute {
		return fmt.Errorf("max transactions per minute must be at least %d", minRatePerMinute)
	}
	if c.RateLimit.MaxPerMinute > maxRatePerMinute {
		return fmt.Errorf("max transactions per minute cannot exceed %d", maxRatePerMinute)
	}
	if c.MaxSkew <= 0 {
		return fmt.Errorf("AUTH_MAX_SKEW must be positive")
	}
	if c.Rules.MinimumBalance.IsNegative() {
		return fmt.Errorf("MIN_BALANCE cannot be negative")
	}
	if c.Rules.NewAccountGraceDays < 0 {
		return fmt.Errorf("NEW_ACCOUNT_GRACE_DAYS cannot be negative")
	}
	if !c.Rules.MaxTransactionAmount.IsPositive() {
		return fmt.Errorf("MAX_TRANSACTION_AMOUNT must be positive")
	}
	if len(c.Clients) == 0 {
		return fmt.Errorf("at least one API client must be configured")
	}
	seen := make(map[string]bool, len(c.Clients))
	for _, cl := range c.Clients {
		if cl.APIKey == "" || cl.SecretKey == "" {
			return fmt.Errorf("client %q must have an apiKey and a secretKey", cl.Name)
		}
		if seen[cl.APIKey] {
			return fmt.Errorf("duplicate apiKey for client %q", cl.Name)
		}
		seen[cl.APIKey] = true
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
