package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/google/uuid"
)

const transactionColumns = `t.transaction_id, t.account_id, a.account_number, t.transaction_type, t.amount, t.timestamp, t.status, t.version, t.last_modified_at`

// PostgresAccountStore implements AccountStore on PostgreSQL
type PostgresAccountStore struct {
	db *sql.DB
}

// NewPostgresAccountStore initializes a new account store
func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

// FindByNumber retrieves an account by its account number
func (r *PostgresAccountStore) FindByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	account := &models.Account{}
	query := `
		SELECT account_id, account_number, balance, created_at, last_modified_at, version
		FROM txn.accounts
		WHERE account_number = $1`
	err := r.db.QueryRowContext(ctx, query, accountNumber).
		Scan(&account.ID, &account.AccountNumber, &account.Balance, &account.CreatedAt, &account.LastModifiedAt, &account.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// Create creates a new account in the database
func (r *PostgresAccountStore) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO txn.accounts (account_number, balance, created_at, last_modified_at, version)
		VALUES ($1, $2, COALESCE($3, CURRENT_TIMESTAMP), CURRENT_TIMESTAMP, 0)
		RETURNING account_id, created_at, last_modified_at, version`
	var createdAt interface{}
	if !account.CreatedAt.IsZero() {
		createdAt = account.CreatedAt
	}
	err := r.db.QueryRowContext(ctx, query, account.AccountNumber, account.Balance, createdAt).
		Scan(&account.ID, &account.CreatedAt, &account.LastModifiedAt, &account.Version)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateBalance writes the new balance guarded by the version column
func (r *PostgresAccountStore) UpdateBalance(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE txn.accounts
		SET balance = $1, last_modified_at = CURRENT_TIMESTAMP, version = version + 1
		WHERE account_id = $2 AND version = $3
		RETURNING version, last_modified_at`
	err := r.db.QueryRowContext(ctx, query, account.Balance, account.ID, account.Version).
		Scan(&account.Version, &account.LastModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (r *PostgresAccountStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// PostgresTransactionStore implements TransactionStore on PostgreSQL
type PostgresTransactionStore struct {
	db *sql.DB
}

// NewPostgresTransactionStore initializes a new transaction store
func NewPostgresTransactionStore(db *sql.DB) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db}
}

// Create inserts a transaction record. A nil ID is replaced by a random UUID.
func (r *PostgresTransactionStore) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.Timestamp.IsZero() {
		txn.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO txn.transactions (transaction_id, account_id, transaction_type, amount, timestamp, status, version, last_modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $5)`
	_, err := r.db.ExecContext(ctx, query, txn.ID, txn.AccountID, string(txn.Type), txn.Amount, txn.Timestamp, string(txn.Status))
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	txn.Version = 0
	txn.LastModifiedAt = txn.Timestamp
	return nil
}

// FindByID retrieves a transaction by id
func (r *PostgresTransactionStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM txn.transactions t
		JOIN txn.accounts a ON a.account_id = t.account_id
		WHERE t.transaction_id = $1`
	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return txn, nil
}

// UpdateStatus moves a transaction to txn.Status guarded by version and current status
func (r *PostgresTransactionStore) UpdateStatus(ctx context.Context, txn *models.Transaction) error {
	if !models.StatusCompleted.CanTransitionTo(txn.Status) {
		return ErrInvalidTransition
	}
	query := `
		UPDATE txn.transactions
		SET status = $1, version = version + 1, last_modified_at = CURRENT_TIMESTAMP
		WHERE transaction_id = $2 AND version = $3 AND status = $4
		RETURNING version, last_modified_at`
	err := r.db.QueryRowContext(ctx, query, string(txn.Status), txn.ID, txn.Version, string(models.StatusCompleted)).
		Scan(&txn.Version, &txn.LastModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	return nil
}

// CountSince counts recent transactions of an account
func (r *PostgresTransactionStore) CountSince(ctx context.Context, accountID int64, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM txn.transactions WHERE account_id = $1 AND timestamp >= $2`
	if err := r.db.QueryRowContext(ctx, query, accountID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// ListByAccount returns the newest transactions of an account
func (r *PostgresTransactionStore) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM txn.transactions t
		JOIN txn.accounts a ON a.account_id = t.account_id
		WHERE t.account_id = $1
		ORDER BY t.timestamp DESC
		LIMIT $2`
	return r.list(ctx, query, accountID, limit)
}

// ListByStatusSince returns transactions that moved to a status since a point in time
func (r *PostgresTransactionStore) ListByStatusSince(ctx context.Context, status models.TransactionStatus, since time.Time) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM txn.transactions t
		JOIN txn.accounts a ON a.account_id = t.account_id
		WHERE t.status = $1 AND t.last_modified_at >= $2
		ORDER BY t.last_modified_at ASC`
	return r.list(ctx, query, string(status), since)
}

func (r *PostgresTransactionStore) list(ctx context.Context, query string, args ...interface{}) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]models.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn       models.Transaction
		txnType   string
		txnStatus string
	)
	if err := row.Scan(&txn.ID, &txn.AccountID, &txn.AccountNumber, &txnType, &txn.Amount, &txn.Timestamp, &txnStatus, &txn.Version, &txn.LastModifiedAt); err != nil {
		return nil, err
	}
	txn.Type = models.TransactionType(txnType)
	txn.Status = models.TransactionStatus(txnStatus)
	return &txn, nil
}
