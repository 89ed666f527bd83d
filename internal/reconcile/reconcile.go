// Package reconcile sweeps transactions whose account update never committed.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dan9191/transaction-service/internal/logging"
	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/Dan9191/transaction-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SettleMargin is how far each sweep reaches back before the previous one.
// Status changes committed late or stamped by another clock land inside it.
const SettleMargin = time.Minute

// Notifier delivers the report of a sweep
type Notifier interface {
	SendFailedTransactionsReport(txns []models.Transaction, since, until time.Time) error
}

// Reconciler reports transactions that moved to FAILED since its previous
// successful run. The first run looks back a fixed duration. Records seen
// inside the settle margin are reported once.
type Reconciler struct {
	txns     repository.TransactionStore
	notifier Notifier
	lookback time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	mu       sync.Mutex
	lastRun  time.Time
	reported map[uuid.UUID]time.Time
}

// New creates a reconciler. notifier may be nil, then results are only logged.
func New(txns repository.TransactionStore, notifier Notifier, lookback time.Duration, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		txns:     txns,
		notifier: notifier,
		lookback: lookback,
		log:      log,
		now:      time.Now,
		reported: make(map[uuid.UUID]time.Time),
	}
}

// WithClock replaces the reconciler's time source
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run performs one sweep and returns the number of FAILED transactions found.
// The window only advances when the sweep and its report succeed.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	until := r.now().UTC()
	since := until.Add(-r.lookback)
	if !r.lastRun.IsZero() {
		since = r.lastRun.Add(-SettleMargin)
	}

	found, err := r.txns.ListByStatusSince(ctx, models.StatusFailed, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed transactions: %w", err)
	}
	failed := found[:0]
	for _, txn := range found {
		if _, seen := r.reported[txn.ID]; !seen && txn.LastModifiedAt.Before(until) {
			failed = append(failed, txn)
		}
	}

	for _, txn := range failed {
		r.log.WithFields(logrus.Fields{
			logging.FieldTransactionID: txn.ID.String(),
			logging.FieldAccountNumber: txn.AccountNumber,
			"type":                     string(txn.Type),
			"amount":                   txn.Amount.String(),
			"created_at":               txn.Timestamp,
			"failed_at":                txn.LastModifiedAt,
		}).Warn("Transaction left in FAILED status")
	}

	if len(failed) > 0 && r.notifier != nil {
		if err := r.notifier.SendFailedTransactionsReport(failed, since, until); err != nil {
			return len(failed), fmt.Errorf("failed to send report: %w", err)
		}
	}

	r.log.WithFields(logrus.Fields{"since": since, "until": until, "failed": len(failed)}).Info("Reconciliation finished")
	for _, txn := range failed {
		r.reported[txn.ID] = txn.LastModifiedAt
	}
	for id, at := range r.reported {
		if at.Before(until.Add(-SettleMargin)) {
			delete(r.reported, id)
		}
	}
	r.lastRun = until
	return len(failed), nil
}
