package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/transaction-service/internal/apperror"
	"github.com/Dan9191/transaction-service/internal/config"
	"github.com/Dan9191/transaction-service/internal/logging"
	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/Dan9191/transaction-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 2, 20, 12, 0, 0, 0, time.UTC)

func testConfig(maxPerMinute int, strict bool) *config.Config {
	return &config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, MaxPerMinute: maxPerMinute, Strict: strict},
		Rules: config.RulesConfig{
			MinimumBalance:       decimal.NewFromInt(100),
			NewAccountGraceDays:  10,
			MaxTransactionAmount: decimal.NewFromInt(10000),
		},
	}
}

type fixture struct {
	store *repository.MemoryStore
	svc   *TransactionService
	logs  *bytes.Buffer
}

func newFixture(t *testing.T, cfg *config.Config, wrap func(repository.AccountStore, repository.TransactionStore) (repository.AccountStore, repository.TransactionStore)) *fixture {
	t.Helper()
	store := repository.NewMemoryStore().WithClock(func() time.Time { return fixedNow })
	accounts, txns := store.Accounts(), store.Transactions()
	if wrap != nil {
		accounts, txns = wrap(accounts, txns)
	}
	logs := &bytes.Buffer{}
	svc := NewTransactionService(accounts, txns, cfg, logging.New("debug", logs)).
		WithClock(func() time.Time { return fixedNow })
	return &fixture{store: store, svc: svc, logs: logs}
}

func (f *fixture) seed(t *testing.T, number string, balance int64, age time.Duration) *models.Account {
	t.Helper()
	acc := &models.Account{AccountNumber: number, Balance: decimal.NewFromInt(balance), CreatedAt: fixedNow.Add(-age)}
	if err := f.store.Accounts().Create(context.Background(), acc); err != nil {
		t.Fatal(err)
	}
	return acc
}

func (f *fixture) balance(t *testing.T, number string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.Accounts().FindByNumber(context.Background(), number)
	if err != nil {
		t.Fatal(err)
	}
	return acc.Balance
}

func (f *fixture) records(t *testing.T, accountID int64) []models.Transaction {
	t.Helper()
	txns, err := f.store.Transactions().ListByAccount(context.Background(), accountID, 0)
	if err != nil {
		t.Fatal(err)
	}
	return txns
}

const oldAge = 30 * 24 * time.Hour

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestDeposit(t *testing.T) {
	f := newFixture(t, testConfig(60, false), nil)
	f.seed(t, "ACC1", 200, oldAge)

	res, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(50), models.Deposit)
	if err != nil {
		t.Fatal(err)
	}
	if res.Transaction.Status != models.StatusCompleted || res.Transaction.ID == uuid.Nil {
		t.Fatalf("transaction = %+v", res.Transaction)
	}
	if !res.Account.Balance.Equal(dec(250)) || res.Account.Version != 1 {
		t.Fatalf("account = %+v", res.Account)
	}
	if got := f.balance(t, "ACC1"); !got.Equal(dec(250)) {
		t.Fatalf("stored balance = %s", got)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(60, false), nil)
	acc := f.seed(t, "ACC1", 200, oldAge)

	if _, err := f.svc.CreateTransaction(ctx, "ACC1", dec(50), models.Deposit); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.CreateTransaction(ctx, "ACC1", dec(300), models.Withdrawal)
	if apperror.KindOf(err) != apperror.KindInsufficientBalance {
		t.Fatalf("err = %v, want InsufficientBalance", err)
	}
	if got := f.balance(t, "ACC1"); !got.Equal(dec(250)) {
		t.Fatalf("balance = %s, want 250", got)
	}
	if n := len(f.records(t, acc.ID)); n != 1 {
		t.Fatalf("records = %d, want 1", n)
	}
}

func TestWithdrawalRules(t *testing.T) {
	tests := []struct {
		name     string
		balance  int64
		age      time.Duration
		amount   int64
		wantErr  bool
		wantLeft int64
	}{
		{"more than balance", 200, oldAge, 300, true, 200},
		{"below floor for existing account", 100, oldAge, 50, true, 100},
		{"exactly the floor", 200, oldAge, 100, false, 100},
		{"new account may drain", 100, 2 * 24 * time.Hour, 100, false, 0},
		{"10 days 23 hours is still new", 100, 10*24*time.Hour + 23*time.Hour, 50, false, 50},
		{"11 days is not new", 100, 11 * 24 * time.Hour, 50, true, 100},
		{"new account cannot overdraw", 40, time.Hour, 50, true, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(60, false), nil)
			acc := f.seed(t, "ACC1", tt.balance, tt.age)

			_, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(tt.amount), models.Withdrawal)
			if tt.wantErr {
				if apperror.KindOf(err) != apperror.KindInsufficientBalance {
					t.Fatalf("err = %v, want InsufficientBalance", err)
				}
				if n := len(f.records(t, acc.ID)); n != 0 {
					t.Fatalf("rejected withdrawal left %d records", n)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := f.balance(t, "ACC1"); !got.Equal(dec(tt.wantLeft)) {
				t.Fatalf("balance = %s, want %d", got, tt.wantLeft)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t, testConfig(60, false), nil)
	f.seed(t, "ACC1", 200, oldAge)

	tests := []struct {
		name   string
		amount decimal.Decimal
		typ    models.TransactionType
		want   apperror.Kind
	}{
		{"zero amount", decimal.Zero, models.Deposit, apperror.KindInvalidTransaction},
		{"negative amount", dec(-5), models.Deposit, apperror.KindInvalidTransaction},
		{"above maximum", decimal.RequireFromString("10000.01"), models.Deposit, apperror.KindInvalidTransaction},
		{"unknown type", dec(5), models.TransactionType("TRANSFER"), apperror.KindInvalidTransaction},
		{"sub-cent amount", decimal.RequireFromString("0.001"), models.Deposit, apperror.KindInvalidTransaction},
		{"three decimal places", decimal.RequireFromString("10.005"), models.Deposit, apperror.KindInvalidTransaction},
		{"trailing zeros are allowed", decimal.RequireFromString("10.500"), models.Deposit, apperror.KindUnknown},
		{"maximum is allowed", dec(10000), models.Deposit, apperror.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTransaction(context.Background(), "ACC1", tt.amount, tt.typ)
			if tt.want == apperror.KindUnknown {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if got := apperror.KindOf(err); got != tt.want {
				t.Fatalf("kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountNotFound(t *testing.T) {
	f := newFixture(t, testConfig(60, false), nil)
	_, err := f.svc.CreateTransaction(context.Background(), "NOPE", dec(10), models.Deposit)
	if apperror.KindOf(err) != apperror.KindAccountNotFound {
		t.Fatalf("err = %v, want AccountNotFound", err)
	}
	if msg := apperror.PublicMessage(err); msg != "Account not found for accountNumber=NOPE" {
		t.Fatalf("message = %q", msg)
	}
}

func TestRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(5, false), nil)
	acc := f.seed(t, "ACC1", 200, oldAge)

	for i := 0; i < 5; i++ {
		if _, err := f.svc.CreateTransaction(ctx, "ACC1", dec(1), models.Deposit); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	_, err := f.svc.CreateTransaction(ctx, "ACC1", dec(1), models.Deposit)
	if apperror.KindOf(err) != apperror.KindRateLimitExceeded {
		t.Fatalf("sixth call err = %v, want RateLimitExceeded", err)
	}
	if n := len(f.records(t, acc.ID)); n != 5 {
		t.Fatalf("records = %d, want 5", n)
	}

	// Transactions older than the window no longer count.
	later := fixedNow.Add(RateWindow + time.Second)
	f.svc.WithClock(func() time.Time { return later })
	if _, err := f.svc.CreateTransaction(ctx, "ACC1", dec(1), models.Deposit); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := testConfig(1, false)
	cfg.RateLimit.Enabled = false
	f := newFixture(t, cfg, nil)
	f.seed(t, "ACC1", 200, oldAge)

	for i := 0; i < 10; i++ {
		if _, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(1), models.Deposit); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
}

type failingAccounts struct {
	repository.AccountStore
	updateErr error
}

func (f failingAccounts) UpdateBalance(ctx context.Context, a *models.Account) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.AccountStore.UpdateBalance(ctx, a)
}

type failingTransactions struct {
	repository.TransactionStore
	createErr error
	statusErr error
}

func (f failingTransactions) Create(ctx context.Context, txn *models.Transaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.TransactionStore.Create(ctx, txn)
}

func (f failingTransactions) UpdateStatus(ctx context.Context, txn *models.Transaction) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	return f.TransactionStore.UpdateStatus(ctx, txn)
}

func TestAccountUpdateFailureCompensates(t *testing.T) {
	f := newFixture(t, testConfig(60, false), func(a repository.AccountStore, tx repository.TransactionStore) (repository.AccountStore, repository.TransactionStore) {
		return failingAccounts{AccountStore: a, updateErr: errors.New("connection lost")}, tx
	})
	acc := f.seed(t, "ACC1", 200, oldAge)

	_, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(50), models.Deposit)
	if apperror.KindOf(err) != apperror.KindPersistence {
		t.Fatalf("err = %v, want PersistenceFailure", err)
	}
	want := "Failed to persist account update record to DB. Transaction persisted with a failed status."
	if msg := apperror.PublicMessage(err); msg != want {
		t.Fatalf("message = %q", msg)
	}

	records := f.records(t, acc.ID)
	if len(records) != 1 || records[0].Status != models.StatusFailed {
		t.Fatalf("records = %+v, want one FAILED", records)
	}
	if got := f.balance(t, "ACC1"); !got.Equal(dec(200)) {
		t.Fatalf("balance = %s, want 200", got)
	}
}

func TestVersionConflictCompensates(t *testing.T) {
	f := newFixture(t, testConfig(60, false), func(a repository.AccountStore, tx repository.TransactionStore) (repository.AccountStore, repository.TransactionStore) {
		return failingAccounts{AccountStore: a, updateErr: repository.ErrVersionConflict}, tx
	})
	acc := f.seed(t, "ACC1", 200, oldAge)

	_, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(50), models.Withdrawal)
	if !errors.Is(err, repository.ErrVersionConflict) || apperror.KindOf(err) != apperror.KindPersistence {
		t.Fatalf("err = %v, want PersistenceFailure wrapping ErrVersionConflict", err)
	}
	if records := f.records(t, acc.ID); len(records) != 1 || records[0].Status != models.StatusFailed {
		t.Fatalf("records = %+v", records)
	}
}

func TestCompensationFailureIsLogged(t *testing.T) {
	f := newFixture(t, testConfig(60, false), func(a repository.AccountStore, tx repository.TransactionStore) (repository.AccountStore, repository.TransactionStore) {
		return failingAccounts{AccountStore: a, updateErr: errors.New("connection lost")},
			failingTransactions{TransactionStore: tx, statusErr: errors.New("still down")}
	})
	f.seed(t, "ACC1", 200, oldAge)

	_, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(50), models.Deposit)
	if apperror.KindOf(err) != apperror.KindPersistence {
		t.Fatalf("err = %v, want PersistenceFailure", err)
	}
	if !strings.Contains(f.logs.String(), "Failed to mark transaction as FAILED") {
		t.Fatalf("compensation failure not logged:\n%s", f.logs.String())
	}
}

func TestRecordCreateFailureLeavesAccount(t *testing.T) {
	f := newFixture(t, testConfig(60, false), func(a repository.AccountStore, tx repository.TransactionStore) (repository.AccountStore, repository.TransactionStore) {
		return a, failingTransactions{TransactionStore: tx, createErr: errors.New("disk full")}
	})
	f.seed(t, "ACC1", 200, oldAge)

	_, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(50), models.Deposit)
	if apperror.KindOf(err) != apperror.KindPersistence {
		t.Fatalf("err = %v, want PersistenceFailure", err)
	}
	if msg := apperror.PublicMessage(err); msg != "Could not create transaction record" {
		t.Fatalf("message = %q", msg)
	}
	acc, _ := f.store.Accounts().FindByNumber(context.Background(), "ACC1")
	if !acc.Balance.Equal(dec(200)) || acc.Version != 0 {
		t.Fatalf("account mutated: %+v", acc)
	}
}

// barrierTransactions holds every CountSince caller until all of them have
// counted, so each one observes the count before any insert.
type barrierTransactions struct {
	repository.TransactionStore
	arrive *sync.WaitGroup
}

func (b barrierTransactions) CountSince(ctx context.Context, accountID int64, since time.Time) (int, error) {
	n, err := b.TransactionStore.CountSince(ctx, accountID, since)
	b.arrive.Done()
	b.arrive.Wait()
	return n, err
}

func runConcurrent(n int, fn func() error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = fn()
		}(i)
	}
	wg.Wait()
	return errs
}

func TestBestEffortLimiterOverAdmits(t *testing.T) {
	const callers = 3
	arrive := &sync.WaitGroup{}
	arrive.Add(callers)
	f := newFixture(t, testConfig(1, false), func(a repository.AccountStore, tx repository.TransactionStore) (repository.AccountStore, repository.TransactionStore) {
		return a, barrierTransactions{TransactionStore: tx, arrive: arrive}
	})
	acc := f.seed(t, "ACC1", 200, oldAge)

	errs := runConcurrent(callers, func() error {
		_, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(10), models.Deposit)
		return err
	})

	var ok, persistence int
	for _, err := range errs {
		switch apperror.KindOf(err) {
		case apperror.KindRateLimitExceeded:
			t.Fatalf("limiter rejected a caller that counted before any insert")
		case apperror.KindPersistence:
			persistence++
		default:
			if err == nil {
				ok++
			}
		}
	}
	// All callers passed a limit of one. The version check lets only one commit.
	records := f.records(t, acc.ID)
	if len(records) != callers {
		t.Fatalf("records = %d, want %d", len(records), callers)
	}
	if ok != 1 || persistence != callers-1 {
		t.Fatalf("ok = %d persistence = %d", ok, persistence)
	}
	failed := 0
	for _, r := range records {
		if r.Status == models.StatusFailed {
			failed++
		}
	}
	if failed != callers-1 {
		t.Fatalf("FAILED records = %d, want %d", failed, callers-1)
	}
	if got := f.balance(t, "ACC1"); !got.Equal(dec(210)) {
		t.Fatalf("balance = %s, want 210", got)
	}
}

func TestStrictLimiterAdmitsExactlyMax(t *testing.T) {
	const callers = 20
	f := newFixture(t, testConfig(5, true), nil)
	acc := f.seed(t, "ACC1", 200, oldAge)

	errs := runConcurrent(callers, func() error {
		_, err := f.svc.CreateTransaction(context.Background(), "ACC1", dec(10), models.Deposit)
		return err
	})

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.KindOf(err) == apperror.KindRateLimitExceeded:
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 5 || limited != callers-5 {
		t.Fatalf("ok = %d limited = %d", ok, limited)
	}
	if n := len(f.records(t, acc.ID)); n != 5 {
		t.Fatalf("records = %d, want 5", n)
	}
	if got := f.balance(t, "ACC1"); !got.Equal(dec(250)) {
		t.Fatalf("balance = %s, want 250", got)
	}
}

func TestGetTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(60, false), nil)
	f.seed(t, "ACC1", 200, oldAge)

	res, err := f.svc.CreateTransaction(ctx, "ACC1", dec(5), models.Deposit)
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.GetTransaction(ctx, res.Transaction.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccountNumber != "ACC1" || !got.Amount.Equal(dec(5)) {
		t.Fatalf("transaction = %+v", got)
	}

	if _, err := f.svc.GetTransaction(ctx, uuid.New()); apperror.KindOf(err) != apperror.KindTransactionNotFound {
		t.Fatalf("err = %v, want TransactionNotFound", err)
	}
}

func TestAccountStatement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(60, false), nil)
	f.seed(t, "ACC1", 200, oldAge)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.CreateTransaction(ctx, "ACC1", dec(1), models.Deposit); err != nil {
			t.Fatal(err)
		}
	}

	st, err := f.svc.AccountStatement(ctx, "ACC1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Transactions) != 2 || !st.Account.Balance.Equal(dec(203)) || !st.GeneratedAt.Equal(fixedNow) {
		t.Fatalf("statement = %+v", st)
	}

	if st, err = f.svc.AccountStatement(ctx, "ACC1", 0); err != nil || len(st.Transactions) != 3 {
		t.Fatalf("default limit: %+v, %v", st, err)
	}
	if _, err := f.svc.AccountStatement(ctx, "NOPE", 0); apperror.KindOf(err) != apperror.KindAccountNotFound {
		t.Fatalf("err = %v, want AccountNotFound", err)
	}
}
