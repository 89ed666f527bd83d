package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps accounts and transactions in process memory. It
// implements both AccountStore and TransactionStore with the same
// version and transition rules as the PostgreSQL stores.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*models.Account
	byNumber map[string]int64
	txns     map[uuid.UUID]*models.Transaction
	now      func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int64]*models.Account),
		byNumber: make(map[string]int64),
		txns:     make(map[uuid.UUID]*models.Transaction),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for generated timestamps
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Accounts returns the store as an AccountStore
func (s *MemoryStore) Accounts() AccountStore { return memoryAccounts{s} }

// Transactions returns the store as a TransactionStore
func (s *MemoryStore) Transactions() TransactionStore { return memoryTransactions{s} }

type memoryAccounts struct{ s *MemoryStore }

func (m memoryAccounts) FindByNumber(_ context.Context, accountNumber string) (*models.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	id, ok := m.s.byNumber[accountNumber]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.s.accounts[id]
	return &cp, nil
}

func (m memoryAccounts) Create(_ context.Context, account *models.Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, dup := m.s.byNumber[account.AccountNumber]; dup {
		return fmt.Errorf("failed to create account: account number %s already exists", account.AccountNumber)
	}
	m.s.nextID++
	account.ID = m.s.nextID
	if account.CreatedAt.IsZero() {
		account.CreatedAt = m.s.now()
	}
	account.LastModifiedAt = m.s.now()
	account.Version = 0
	cp := *account
	m.s.accounts[account.ID] = &cp
	m.s.byNumber[account.AccountNumber] = account.ID
	return nil
}

func (m memoryAccounts) UpdateBalance(_ context.Context, account *models.Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.accounts[account.ID]
	if !ok || stored.Version != account.Version {
		return ErrVersionConflict
	}
	stored.Balance = account.Balance
	stored.Version++
	stored.LastModifiedAt = m.s.now()
	account.Version = stored.Version
	account.LastModifiedAt = stored.LastModifiedAt
	return nil
}

func (m memoryAccounts) Ping(context.Context) error { return nil }

type memoryTransactions struct{ s *MemoryStore }

func (m memoryTransactions) Create(_ context.Context, txn *models.Transaction) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if _, dup := m.s.txns[txn.ID]; dup {
		return fmt.Errorf("failed to create transaction: duplicate id %s", txn.ID)
	}
	if txn.Timestamp.IsZero() {
		txn.Timestamp = m.s.now()
	}
	txn.LastModifiedAt = txn.Timestamp
	txn.Version = 0
	cp := *txn
	m.s.txns[txn.ID] = &cp
	return nil
}

func (m memoryTransactions) FindByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	txn, ok := m.s.txns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.s.withAccountNumber(*txn), nil
}

func (m memoryTransactions) UpdateStatus(_ context.Context, txn *models.Transaction) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.txns[txn.ID]
	if !ok {
		return ErrNotFound
	}
	if !stored.Status.CanTransitionTo(txn.Status) {
		return ErrInvalidTransition
	}
	if stored.Version != txn.Version {
		return ErrVersionConflict
	}
	stored.Status = txn.Status
	stored.Version++
	stored.LastModifiedAt = m.s.now()
	txn.Version = stored.Version
	txn.LastModifiedAt = stored.LastModifiedAt
	return nil
}

func (m memoryTransactions) CountSince(_ context.Context, accountID int64, since time.Time) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	count := 0
	for _, txn := range m.s.txns {
		if txn.AccountID == accountID && !txn.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m memoryTransactions) ListByAccount(_ context.Context, accountID int64, limit int) ([]models.Transaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]models.Transaction, 0)
	for _, txn := range m.s.txns {
		if txn.AccountID == accountID {
			out = append(out, *m.s.withAccountNumber(*txn))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memoryTransactions) ListByStatusSince(_ context.Context, status models.TransactionStatus, since time.Time) ([]models.Transaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]models.Transaction, 0)
	for _, txn := range m.s.txns {
		if txn.Status == status && !txn.LastModifiedAt.Before(since) {
			out = append(out, *m.s.withAccountNumber(*txn))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModifiedAt.Before(out[j].LastModifiedAt) })
	return out, nil
}

// withAccountNumber fills the account number like the SQL join does. Caller holds mu.
func (s *MemoryStore) withAccountNumber(txn models.Transaction) *models.Transaction {
	if acc, ok := s.accounts[txn.AccountID]; ok {
		txn.AccountNumber = acc.AccountNumber
	}
	return &txn
}
