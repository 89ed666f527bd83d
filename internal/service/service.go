package service

import (
	"context"
	"errors"
	"time"

	"github.com/Dan9191/transaction-service/internal/apperror"
	"github.com/Dan9191/transaction-service/internal/config"
	"github.com/Dan9191/transaction-service/internal/logging"
	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/Dan9191/transaction-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultStatementLimit is used when a statement request carries no limit
	DefaultStatementLimit = 50
	// MaxStatementLimit caps the number of transactions in one statement
	MaxStatementLimit = 500

	compensationTimeout = 5 * time.Second
)

// Result is a committed transaction together with the refreshed account
type Result struct {
	Transaction *models.Transaction
	Account     *models.Account
}

// Statement is an account snapshot with its most recent transactions
type Statement struct {
	Account      *models.Account
	Transactions []models.Transaction
	GeneratedAt  time.Time
}

// TransactionService applies deposits and withdrawals to accounts.
//
// The transaction record is committed before the account. When the account
// write fails the record is moved to FAILED in a separate write, so a record
// exists for every transaction that passed validation.
type TransactionService struct {
	accounts repository.AccountStore
	txns     repository.TransactionStore
	limiter  *RateLimiter
	locks    *accountLocker
	rules    config.RulesConfig
	log      *logrus.Logger
	now      func() time.Time
}

// NewTransactionService initializes the transaction engine
func NewTransactionService(accounts repository.AccountStore, txns repository.TransactionStore, cfg *config.Config, log *logrus.Logger) *TransactionService {
	s := &TransactionService{
		accounts: accounts,
		txns:     txns,
		limiter:  NewRateLimiter(txns, cfg.RateLimit),
		rules:    cfg.Rules,
		log:      log,
		now:      time.Now,
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.Strict {
		s.locks = newAccountLocker()
	}
	return s
}

// WithClock replaces the time source of the engine and its rate limiter
func (s *TransactionService) WithClock(now func() time.Time) *TransactionService {
	s.now = now
	s.limiter.WithClock(now)
	return s
}

// CreateTransaction validates and applies one transaction to the account
func (s *TransactionService) CreateTransaction(ctx context.Context, accountNumber string, amount decimal.Decimal, typ models.TransactionType) (*Result, error) {
	if err := s.validate(amount, typ); err != nil {
		return nil, err
	}

	account, err := s.findAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	if s.locks != nil {
		unlock := s.locks.Lock(account.ID)
		defer unlock()
		// Re-read under the lock so the version matches the last commit.
		if account, err = s.findAccount(ctx, accountNumber); err != nil {
			return nil, err
		}
	}

	allowed, err := s.limiter.Allow(ctx, account.ID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindPersistence, err, "Could not check transaction rate")
	}
	if !allowed {
		s.log.WithField(logging.FieldAccountNumber, accountNumber).Warn("Rate limit exceeded")
		return nil, apperror.New(apperror.KindRateLimitExceeded,
			"Rate limit exceeded: Maximum %d transactions per minute allowed", s.limiter.MaxPerMinute())
	}

	newBalance, err := s.applyRules(account, amount, typ)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:            uuid.New(),
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Type:          typ,
		Amount:        amount,
		Timestamp:     s.now().UTC(),
		Status:        models.StatusCompleted,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		s.log.WithError(err).WithField(logging.FieldAccountNumber, accountNumber).Error("Failed to create initial transaction")
		return nil, apperror.Wrap(apperror.KindPersistence, err, "Could not create transaction record")
	}
	s.log.WithField(logging.FieldTransactionID, txn.ID.String()).Debug("Initial transaction created")

	account.Balance = newBalance
	if err := s.accounts.UpdateBalance(ctx, account); err != nil {
		s.log.WithError(err).WithField(logging.FieldTransactionID, txn.ID.String()).Error("Account update failed")
		s.markFailed(ctx, txn.ID)
		return nil, apperror.Wrap(apperror.KindPersistence, err,
			"Failed to persist account update record to DB. Transaction persisted with a failed status.")
	}

	s.log.WithFields(logrus.Fields{
		logging.FieldTransactionID: txn.ID.String(),
		logging.FieldAccountNumber: account.AccountNumber,
		"type":                     string(typ),
		"amount":                   amount.String(),
	}).Info("Transaction completed")
	return &Result{Transaction: txn, Account: account}, nil
}

// GetTransaction returns the transaction with the given id
func (s *TransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	txn, err := s.txns.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.New(apperror.KindTransactionNotFound, "Transaction not found for transactionId=%s", id)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindPersistence, err, "Could not load transaction")
	}
	return txn, nil
}

// AccountStatement returns the account with up to limit of its newest transactions
func (s *TransactionService) AccountStatement(ctx context.Context, accountNumber string, limit int) (*Statement, error) {
	if limit <= 0 {
		limit = DefaultStatementLimit
	}
	if limit > MaxStatementLimit {
		limit = MaxStatementLimit
	}
	account, err := s.findAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	txns, err := s.txns.ListByAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindPersistence, err, "Could not load transactions")
	}
	return &Statement{Account: account, Transactions: txns, GeneratedAt: s.now().UTC()}, nil
}

// Ping checks the account store
func (s *TransactionService) Ping(ctx context.Context) error {
	return s.accounts.Ping(ctx)
}

func (s *TransactionService) validate(amount decimal.Decimal, typ models.TransactionType) error {
	if !typ.Valid() {
		return apperror.New(apperror.KindInvalidTransaction, "Unsupported transaction type %q", string(typ))
	}
	if !amount.IsPositive() {
		return apperror.New(apperror.KindInvalidTransaction, "Amount must be greater than 0")
	}
	if !models.ValidScale(amount) {
		return apperror.New(apperror.KindInvalidTransaction, "Amount cannot have more than %d decimal places", models.AmountScale)
	}
	if amount.GreaterThan(s.rules.MaxTransactionAmount) {
		return apperror.New(apperror.KindInvalidTransaction, "Amount cannot exceed %s", s.rules.MaxTransactionAmount)
	}
	return nil
}

func (s *TransactionService) findAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	account, err := s.accounts.FindByNumber(ctx, accountNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.New(apperror.KindAccountNotFound, "Account not found for accountNumber=%s", accountNumber)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindPersistence, err, "Could not load account")
	}
	return account, nil
}

// applyRules returns the balance after the transaction or an InsufficientBalance error
func (s *TransactionService) applyRules(account *models.Account, amount decimal.Decimal, typ models.TransactionType) (decimal.Decimal, error) {
	if typ == models.Deposit {
		return account.Balance.Add(amount), nil
	}
	if account.Balance.LessThan(amount) {
		return decimal.Zero, apperror.New(apperror.KindInsufficientBalance, "Insufficient funds")
	}
	newBalance := account.Balance.Sub(amount)
	if !s.isNewAccount(account) && newBalance.LessThan(s.rules.MinimumBalance) {
		return decimal.Zero, apperror.New(apperror.KindInsufficientBalance,
			"Balance cannot drop below %s for existing accounts", s.rules.MinimumBalance)
	}
	return newBalance, nil
}

// isNewAccount reports whether the account is still inside the grace window
func (s *TransactionService) isNewAccount(account *models.Account) bool {
	return account.AgeInDays(s.now()) <= s.rules.NewAccountGraceDays
}

// markFailed moves a committed transaction to FAILED. Errors are only logged,
// the caller already reports the account failure.
func (s *TransactionService) markFailed(ctx context.Context, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	entry := s.log.WithField(logging.FieldTransactionID, id.String())
	txn, err := s.txns.FindByID(ctx, id)
	if err != nil {
		entry.WithError(err).Error("Failed to load transaction for compensation")
		return
	}
	txn.Status = models.StatusFailed
	if err := s.txns.UpdateStatus(ctx, txn); err != nil {
		entry.WithError(err).Error("Failed to mark transaction as FAILED")
		return
	}
	entry.Warn("Transaction marked as failed")
}
