package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction
type TransactionType string

const (
	Deposit    TransactionType = "DEPOSIT"
	Withdrawal TransactionType = "WITHDRAWAL"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	return t == Deposit || t == Withdrawal
}

// AmountScale is the number of decimal places amounts and balances are stored with
const AmountScale = 2

// ValidScale reports whether amount fits AmountScale without rounding
func ValidScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(AmountScale))
}

// TransactionStatus is the lifecycle state of a transaction record
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// CanTransitionTo reports whether a record in status s may move to next.
// COMPLETED -> FAILED is the only allowed transition.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == StatusCompleted && next == StatusFailed
}

// Transaction represents a deposit or withdrawal against an account
type Transaction struct {
	ID             uuid.UUID         `json:"transaction_id"`
	AccountID      int64             `json:"account_id"`
	AccountNumber  string            `json:"account_number"`
	Type           TransactionType   `json:"transaction_type"`
	Amount         decimal.Decimal   `json:"amount"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         TransactionStatus `json:"status"`
	Version        int64             `json:"version"`
	LastModifiedAt time.Time         `json:"last_modified_at"` // last status change
}
