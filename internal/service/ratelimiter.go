package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/transaction-service/internal/config"
	"github.com/Dan9191/transaction-service/internal/repository"
)

// RateWindow is the sliding window the per-account limit applies to
const RateWindow = time.Minute

// RateLimiter caps the number of transactions an account may create per
// RateWindow. The count and the later insert are separate store calls, so
// concurrent requests on one account may all pass the check; see
// TransactionService for the optional strict mode.
type RateLimiter struct {
	txns repository.TransactionStore
	cfg  config.RateLimitConfig
	now  func() time.Time
}

// NewRateLimiter creates a limiter counting through txns
func NewRateLimiter(txns repository.TransactionStore, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{txns: txns, cfg: cfg, now: time.Now}
}

// WithClock replaces the limiter's time source
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Allow reports whether the account may create another transaction now
func (l *RateLimiter) Allow(ctx context.Context, accountID int64) (bool, error) {
	if !l.cfg.Enabled {
		return true, nil
	}
	count, err := l.txns.CountSince(ctx, accountID, l.now().Add(-RateWindow))
	if err != nil {
		return false, fmt.Errorf("failed to count recent transactions: %w", err)
	}
	return count < l.cfg.MaxPerMinute, nil
}

// MaxPerMinute returns the configured limit
func (l *RateLimiter) MaxPerMinute() int { return l.cfg.MaxPerMinute }
