package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/repository"
	"github.com/Fi44er/invest_bot/internal/service"
	"github.com/Fi44er/invest_bot/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newService(t *testing.T) (*service.Service, *repository.MemoryBlobRepository) {
	t.Helper()
	store := repository.NewMemoryBlobRepository()
	c := &clock{now: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
	return service.NewService(store, utils.NewNopLogger(), service.WithClock(c.Now)), store
}

func strPtr(s string) *string { return &s }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func pendingDeposit(id string, amount int64) models.Transaction {
	return models.Transaction{
		ID:       id,
		Type:     models.TxDeposit,
		Amount:   decimal.NewFromInt(amount),
		Currency: "USD",
		Status:   models.StatusPending,
		Date:     "2024-05-10",
		Method:   "Bitcoin",
	}
}

func TestUpsertThenFind_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.UpsertAccount(ctx, service.AccountInput{
		Email:   "u@x.com",
		Name:    strPtr("John Doe"),
		Balance: decPtr(0),
		Status:  strPtr(models.AccountActive),
		Joined:  strPtr("2024-05-01"),
	})
	require.NoError(t, err)

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "u@x.com", acc.Email)
	assert.Equal(t, "John Doe", acc.Name)
	assert.True(t, acc.Balance.IsZero())
	assert.Equal(t, models.AccountActive, acc.Status)
	assert.Equal(t, "2024-05-01", acc.Joined)
	assert.NotEmpty(t, acc.ID)
}

func TestUpsert_ShallowMergeKeepsUnspecifiedFields(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.UpsertAccount(ctx, service.AccountInput{Email: "u@x.com", Name: strPtr("Jane"), Balance: decPtr(50)})
	require.NoError(t, err)

	merged, err := svc.UpsertAccount(ctx, service.AccountInput{Email: "U@X.COM", Status: strPtr(models.AccountBlocked)})
	require.NoError(t, err)

	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, "Jane", merged.Name)
	assert.True(t, merged.Balance.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, models.AccountBlocked, merged.Status)

	accounts, err := svc.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestFindAccount_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.CreateAccount(ctx, models.Account{Email: "a@b.com", Name: "A"})
	require.NoError(t, err)

	upper, err := svc.FindAccount(ctx, "A@B.com")
	require.NoError(t, err)
	lower, err := svc.FindAccount(ctx, "a@b.com")
	require.NoError(t, err)

	require.NotNil(t, upper)
	assert.Equal(t, upper, lower)
}

func TestFindAccount_Absent(t *testing.T) {
	svc, _ := newService(t)

	acc, err := svc.FindAccount(context.Background(), "nobody@x.com")
	assert.NoError(t, err)
	assert.Nil(t, acc)
}

func TestCreateAccount_RejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, models.Account{Email: "U@x.com", Name: "Other"})
	assert.True(t, apperr.IsDuplicate(err))

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.Empty(t, acc.Name)
}

func TestCreateAccount_Validation(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateAccount(context.Background(), models.Account{Email: "not-an-email"})
	assert.True(t, apperr.IsValidationError(err))

	_, err = svc.CreateAccount(context.Background(), models.Account{Email: "u@x.com", Status: "frozen"})
	assert.True(t, apperr.IsValidationError(err))
}

func TestAppendTransaction_MissingAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)

	err = svc.AppendTransaction(ctx, "ghost@x.com", pendingDeposit("tx_1", 10))
	assert.True(t, apperr.IsNotFound(err))

	accounts, err := svc.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Empty(t, accounts[0].Transactions)
}

func TestAppendTransaction_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)

	tx := pendingDeposit("tx_1", 0)
	assert.True(t, apperr.IsValidationError(svc.AppendTransaction(ctx, "u@x.com", tx)))

	require.NoError(t, svc.AppendTransaction(ctx, "u@x.com", pendingDeposit("tx_1", 5)))
	assert.True(t, apperr.IsDuplicate(svc.AppendTransaction(ctx, "u@x.com", pendingDeposit("tx_1", 7))))
}

func TestAdjustBalance_Sequential(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)

	bal, err := svc.AdjustBalance(ctx, "u@x.com", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(50)))

	bal, err = svc.AdjustBalance(ctx, "u@x.com", decimal.NewFromInt(-20))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(30)))

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(30)))
}

func TestAdjustBalance_MissingAccount(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.AdjustBalance(context.Background(), "ghost@x.com", decimal.NewFromInt(1))
	assert.True(t, apperr.IsNotFound(err))
}

func TestAdjustBalance_ListenerFailureIsReported(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)

	svc.OnBalanceChange(func(context.Context, *models.Account) error {
		return errors.New("session storage full")
	})

	bal, err := svc.AdjustBalance(ctx, "u@x.com", decimal.NewFromInt(5))
	assert.True(t, apperr.IsSessionSyncError(err))
	assert.True(t, bal.Equal(decimal.NewFromInt(5)))

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(5)))
}

func TestListAccounts_MalformedBlobIsEmpty(t *testing.T) {
	svc, store := newService(t)
	store.Put(models.KeyRegisteredUsers, []byte("definitely not json"))

	accounts, err := svc.ListAccounts(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = svc.CreateAccount(context.Background(), models.Account{Email: "u@x.com"})
	require.NoError(t, err)
	accounts, err = svc.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestListAccounts_LegacyNumericBlob(t *testing.T) {
	svc, store := newService(t)
	store.Put(models.KeyRegisteredUsers, []byte(`[{"email":"user1@example.com","name":"John Doe","password":"secret","balance":1250.75,"status":"active","joined":"2024-05-01","transactions":[{"id":"tx_1","type":"deposit","amount":1000,"currency":"USD","status":"completed","date":"2024-05-05","method":"Bitcoin"}]}]`))

	acc, err := svc.FindAccount(context.Background(), "USER1@example.com")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("1250.75")))
	assert.Equal(t, "secret", acc.LegacyPassword)
	require.Len(t, acc.Transactions, 1)
	assert.True(t, acc.Transactions[0].Amount.Equal(decimal.NewFromInt(1000)))
}

func TestListAccounts_StoreUnavailableFallsBackToSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)
	_, err = svc.ListAccounts(ctx)
	require.NoError(t, err)

	store.FailWith(errors.New("quota exceeded"))

	accounts, err := svc.ListAccounts(ctx)
	assert.True(t, apperr.IsStoreUnavailable(err))
	assert.Len(t, accounts, 1)

	err = svc.AppendTransaction(ctx, "u@x.com", pendingDeposit("tx_1", 10))
	assert.True(t, apperr.IsStoreUnavailable(err))
}

func TestDuplicateEmailsInBlob_AreAnIntegrityViolation(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	store.Put(models.KeyRegisteredUsers, []byte(`[{"email":"u@x.com","name":"first","status":"active","balance":0},{"email":"U@x.com","name":"second","status":"active","balance":0}]`))

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.Equal(t, "first", acc.Name)

	err = svc.AppendTransaction(ctx, "u@x.com", pendingDeposit("tx_1", 10))
	assert.True(t, apperr.IsDuplicate(err))
}

// staleStore lets one writer read, then lets another writer commit before the
// first one writes back.
type staleStore struct {
	*repository.MemoryBlobRepository
	once   sync.Once
	before func()
}

func (s *staleStore) CompareAndSwap(ctx context.Context, key string, expected int64, value []byte) (bool, error) {
	s.once.Do(s.before)
	return s.MemoryBlobRepository.CompareAndSwap(ctx, key, expected, value)
}

func TestConcurrentWriters_NoLostUpdate(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryBlobRepository()
	other := service.NewService(mem, utils.NewNopLogger())
	_, err := other.CreateAccount(ctx, models.Account{Email: "a@x.com"})
	require.NoError(t, err)
	_, err = other.CreateAccount(ctx, models.Account{Email: "b@x.com"})
	require.NoError(t, err)

	store := &staleStore{MemoryBlobRepository: mem}
	store.before = func() {
		_, err := other.AdjustBalance(ctx, "b@x.com", decimal.NewFromInt(7))
		require.NoError(t, err)
	}
	svc := service.NewService(store, utils.NewNopLogger())

	_, err = svc.AdjustBalance(ctx, "a@x.com", decimal.NewFromInt(3))
	require.NoError(t, err)

	a, err := svc.FindAccount(ctx, "a@x.com")
	require.NoError(t, err)
	b, err := svc.FindAccount(ctx, "b@x.com")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(3)))
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(7)))
}

func TestMutate_GivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryBlobRepository()
	svc := service.NewService(&alwaysStale{mem}, utils.NewNopLogger(), service.WithMaxRetries(2))

	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

type alwaysStale struct {
	*repository.MemoryBlobRepository
}

func (alwaysStale) CompareAndSwap(context.Context, string, int64, []byte) (bool, error) {
	return false, nil
}

func TestAttachProof_KeepsStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)
	require.NoError(t, svc.AppendTransaction(ctx, "u@x.com", pendingDeposit("tx_1", 10)))

	require.NoError(t, svc.AttachProof(ctx, "u@x.com", "tx_1", "tg:file-1"))

	txs, err := svc.GetUserTransactions(ctx, "u@x.com")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.StatusPending, txs[0].Status)
	assert.Equal(t, "tg:file-1", txs[0].Proof)

	assert.True(t, apperr.IsNotFound(svc.AttachProof(ctx, "u@x.com", "tx_missing", "x")))
}

func TestAddInvestment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)

	inv, err := svc.AddInvestment(ctx, "u@x.com", models.Investment{
		Plan:     "Bitcoin Plan",
		Amount:   decimal.NewFromInt(750),
		Profit:   decimal.NewFromInt(30),
		Duration: "10 Days",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentActive, inv.Status)
	assert.Equal(t, "2024-05-10", inv.StartDate)

	invs, err := svc.GetUserInvestments(ctx, "u@x.com")
	require.NoError(t, err)
	assert.Len(t, invs, 1)

	_, err = svc.AddInvestment(ctx, "ghost@x.com", models.Investment{Plan: "p", Amount: decimal.NewFromInt(1)})
	assert.True(t, apperr.IsNotFound(err))
}

func TestFindAccountByID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	created, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)
	_, err = svc.UpsertAccount(ctx, service.AccountInput{Email: "legacy@x.com"})
	require.NoError(t, err)

	acc, err := svc.FindAccountByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "u@x.com", acc.Email)

	acc, err = svc.FindAccountByID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestRequestWithdrawal_ChecksAvailableBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com", Balance: decimal.NewFromInt(100)})
	require.NoError(t, err)

	tx, err := svc.RequestWithdrawal(ctx, "u@x.com", decimal.NewFromInt(60), "USD", "USDT")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Equal(t, models.TxWithdrawal, tx.Type)

	// 60 is already requested, only 40 is left.
	_, err = svc.RequestWithdrawal(ctx, "u@x.com", decimal.NewFromInt(50), "USD", "USDT")
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, service.PendingWithdrawals(acc).Equal(decimal.NewFromInt(60)))
	assert.True(t, service.AvailableBalance(acc).Equal(decimal.NewFromInt(40)))

	_, err = svc.RequestWithdrawal(ctx, "u@x.com", decimal.Zero, "USD", "USDT")
	assert.True(t, apperr.IsValidationError(err))
	_, err = svc.RequestWithdrawal(ctx, "ghost@x.com", decimal.NewFromInt(1), "USD", "USDT")
	assert.True(t, apperr.IsNotFound(err))
}

func TestReviewTransaction_Deposit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)
	require.NoError(t, svc.AppendTransaction(ctx, "u@x.com", pendingDeposit("tx_1", 100)))
	require.NoError(t, svc.AppendTransaction(ctx, "u@x.com", pendingDeposit("tx_2", 30)))

	var notified int
	svc.OnBalanceChange(func(context.Context, *models.Account) error {
		notified++
		return nil
	})

	tx, err := svc.ReviewTransaction(ctx, "u@x.com", "tx_1", models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.NotEmpty(t, tx.ReviewedAt)

	tx, err = svc.ReviewTransaction(ctx, "u@x.com", "tx_2", models.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, tx.Status)

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, notified, "only the credit resyncs sessions")

	_, err = svc.ReviewTransaction(ctx, "u@x.com", "tx_1", models.StatusRejected)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = svc.ReviewTransaction(ctx, "u@x.com", "tx_9", models.StatusCompleted)
	assert.True(t, apperr.IsNotFound(err))
	_, err = svc.ReviewTransaction(ctx, "u@x.com", "tx_2", models.StatusPending)
	assert.True(t, apperr.IsValidationError(err))
}

func TestReviewTransaction_WithdrawalDebits(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com", Balance: decimal.NewFromInt(100)})
	require.NoError(t, err)

	tx, err := svc.RequestWithdrawal(ctx, "u@x.com", decimal.NewFromInt(70), "USD", "Bitcoin")
	require.NoError(t, err)
	_, err = svc.AdjustBalance(ctx, "u@x.com", decimal.NewFromInt(-50))
	require.NoError(t, err)

	_, err = svc.ReviewTransaction(ctx, "u@x.com", tx.ID, models.StatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	_, err = svc.AdjustBalance(ctx, "u@x.com", decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = svc.ReviewTransaction(ctx, "u@x.com", tx.ID, models.StatusCompleted)
	require.NoError(t, err)

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(30)))
	assert.True(t, service.PendingWithdrawals(acc).IsZero())
}

func TestSetAccountStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)

	acc, err := svc.SetAccountStatus(ctx, "U@X.com", models.AccountBlocked)
	require.NoError(t, err)
	assert.Equal(t, models.AccountBlocked, acc.Status)

	_, err = svc.SetAccountStatus(ctx, "u@x.com", "frozen")
	assert.True(t, apperr.IsValidationError(err))
	_, err = svc.SetAccountStatus(ctx, "ghost@x.com", models.AccountActive)
	assert.True(t, apperr.IsNotFound(err))
}

// perUSD converts with fixed units-per-USD rates.
type perUSD map[string]decimal.Decimal

func (r perUSD) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, ok := r[strings.ToUpper(from)]
	if !ok || to != models.BaseCurrency {
		return decimal.Zero, fmt.Errorf("no rate for %s/%s", from, to)
	}
	return amount.Div(rate), nil
}

func deposit(id string, amount int64, currency string) models.Transaction {
	tx := pendingDeposit(id, amount)
	tx.Currency = currency
	return tx
}

func TestReviewTransaction_SettlesForeignDepositInBaseCurrency(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryBlobRepository()
	svc := service.NewService(store, utils.NewNopLogger(),
		service.WithConverter(perUSD{"JPY": decimal.NewFromInt(150)}))
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)
	require.NoError(t, svc.AppendTransaction(ctx, "u@x.com", deposit("tx_1", 1500000, "JPY")))

	tx, err := svc.ReviewTransaction(ctx, "u@x.com", "tx_1", models.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, tx.Settled)
	assert.True(t, tx.Settled.Equal(decimal.NewFromInt(10000)), tx.Settled.String())

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10000)), acc.Balance.String())
	assert.True(t, acc.Transactions[0].Amount.Equal(decimal.NewFromInt(1500000)))
	assert.Equal(t, "JPY", acc.Transactions[0].Currency)

	_, err = svc.RequestWithdrawal(ctx, "u@x.com", decimal.NewFromInt(1500000), "USD", "Bitcoin")
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	_, err = svc.RequestWithdrawal(ctx, "u@x.com", decimal.NewFromInt(10), "JPY", "Bitcoin")
	assert.True(t, apperr.IsValidationError(err))
}

func TestReviewTransaction_ForeignDepositNeedsRates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)
	require.NoError(t, svc.AppendTransaction(ctx, "u@x.com", deposit("tx_1", 1000000, "JPY")))

	_, err = svc.ReviewTransaction(ctx, "u@x.com", "tx_1", models.StatusCompleted)
	assert.True(t, apperr.IsValidationError(err))

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())
	assert.Equal(t, models.StatusPending, acc.Transactions[0].Status)

	// Rejecting needs no conversion.
	tx, err := svc.ReviewTransaction(ctx, "u@x.com", "tx_1", models.StatusRejected)
	require.NoError(t, err)
	assert.Nil(t, tx.Settled)
}

func TestReviewTransaction_UnknownRateLeavesPending(t *testing.T) {
	ctx := context.Background()
	svc := service.NewService(repository.NewMemoryBlobRepository(), utils.NewNopLogger(),
		service.WithConverter(perUSD{}))
	_, err := svc.CreateAccount(ctx, models.Account{Email: "u@x.com"})
	require.NoError(t, err)
	require.NoError(t, svc.AppendTransaction(ctx, "u@x.com", deposit("tx_1", 10, "XYZ")))

	_, err = svc.ReviewTransaction(ctx, "u@x.com", "tx_1", models.StatusCompleted)
	assert.Error(t, err)

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())
	assert.Equal(t, models.StatusPending, acc.Transactions[0].Status)
}

func TestUpsertAccount_RejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.UpsertAccount(ctx, service.AccountInput{Email: "u@x.com", Balance: decPtr(-1)})
	assert.True(t, apperr.IsValidationError(err))

	acc, err := svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.Nil(t, acc)

	_, err = svc.UpsertAccount(ctx, service.AccountInput{Email: "u@x.com", Balance: decPtr(5)})
	require.NoError(t, err)
	_, err = svc.UpsertAccount(ctx, service.AccountInput{Email: "u@x.com", Balance: decPtr(-5)})
	assert.True(t, apperr.IsValidationError(err))

	acc, err = svc.FindAccount(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(5)))
}
