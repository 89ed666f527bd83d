package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a customer account. Version is the optimistic
// concurrency token and is bumped on every committed balance update.
type Account struct {
	ID             int64           `json:"account_id"`
	AccountNumber  string          `json:"account_number"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
	Version        int64           `json:"version"`
}

// AgeInDays returns the number of whole days between creation and now.
func (a *Account) AgeInDays(now time.Time) int {
	return int(now.Sub(a.CreatedAt) / (24 * time.Hour))
}
