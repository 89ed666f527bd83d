// Package repository persists accounts and transactions. Every method is a
// self-contained unit of work: when it returns nil its write is committed.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a compare-and-swap update lost a race
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition is returned for a status change other than COMPLETED -> FAILED
	ErrInvalidTransition = errors.New("invalid status transition")
)

// AccountStore persists accounts keyed by account number
type AccountStore interface {
	FindByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	// Create inserts a new account. Used by provisioning and seeding only.
	Create(ctx context.Context, account *models.Account) error
	// UpdateBalance stores account.Balance if the stored version still equals
	// account.Version. On success account.Version and LastModifiedAt are refreshed.
	UpdateBalance(ctx context.Context, account *models.Account) error
	Ping(ctx context.Context) error
}

// TransactionStore persists transaction records keyed by id
type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	// UpdateStatus stores txn.Status if the stored version equals txn.Version
	// and the transition is allowed. txn.Version and LastModifiedAt are refreshed on success.
	UpdateStatus(ctx context.Context, txn *models.Transaction) error
	// CountSince counts the account's transactions created at or after since.
	CountSince(ctx context.Context, accountID int64, since time.Time) (int, error)
	// ListByAccount returns up to limit transactions, newest first.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.Transaction, error)
	// ListByStatusSince returns transactions in status whose last status change
	// is at or after since, oldest change first.
	ListByStatusSince(ctx context.Context, status models.TransactionStatus, since time.Time) ([]models.Transaction, error)
}
