package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAccounts struct {
	accounts []models.Account
	err      error
}

func (s staticAccounts) ListAccounts(context.Context) ([]models.Account, error) {
	return s.accounts, s.err
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func fixtureAccounts() []models.Account {
	return []models.Account{
		{
			ID: "1", Email: "john@example.com", Name: "John Doe", Balance: dec("5000"), Status: models.AccountActive,
			Transactions: []models.Transaction{
				{ID: "tx_1", Type: models.TxDeposit, Amount: dec("1000"), Currency: "USD", Status: models.StatusCompleted, Method: "Bitcoin"},
				{ID: "tx_2", Type: models.TxWithdrawal, Amount: dec("500"), Currency: "USD", Status: models.StatusPending, Method: "Ethereum"},
			},
			Investments: []models.Investment{
				{ID: "inv_1", Plan: "Gold", Amount: dec("2000"), Profit: dec("150.5"), Status: models.InvestmentActive},
			},
		},
		{
			ID: "2", Email: "jane@example.com", Name: "Jane Smith", Status: models.AccountBlocked,
			Transactions: []models.Transaction{
				{ID: "tx_3", Type: models.TxDeposit, Amount: dec("750"), Currency: "USD", Status: models.StatusPending, Method: "USDT"},
				{ID: "tx_4", Type: models.TxWithdrawal, Amount: dec("1500"), Currency: "USD", Status: models.StatusCompleted, Method: "USDT"},
			},
		},
		{
			Email: "legacy@example.com", Name: "Legacy", Status: models.AccountActive,
			Transactions: []models.Transaction{
				{ID: "tx_5", Type: models.TxDeposit, Amount: dec("10"), Currency: "EUR", Status: models.StatusPending, Method: "Bitcoin"},
			},
		},
	}
}

func newReview(accounts []models.Account, err error) *Review {
	return NewReview(staticAccounts{accounts: accounts, err: err}, utils.NewNopLogger())
}

func TestDeposits_JoinedWithOwner(t *testing.T) {
	rows, err := newReview(fixtureAccounts(), nil).Deposits(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "tx_1", rows[0].ID)
	assert.Equal(t, "John Doe", rows[0].Name)
	assert.Equal(t, "john@example.com", rows[0].Email)
	assert.Equal(t, "Jane Smith", rows[1].Name)

	assert.Equal(t, "tx_5", rows[2].ID)
	assert.Equal(t, Unknown, rows[2].Name)
	assert.Equal(t, Unknown, rows[2].Email)
}

func TestJoin_OrphanReferenceRendersUnknown(t *testing.T) {
	records := []owned[models.Transaction]{
		{ownerID: "1", item: models.Transaction{ID: "a"}},
		{ownerID: "deleted", item: models.Transaction{ID: "b"}},
	}
	rows := joinTransactions(records, fixtureAccounts())
	require.Len(t, rows, 2)
	assert.Equal(t, "John Doe", rows[0].Name)
	assert.Equal(t, Unknown, rows[1].Name)
	assert.Equal(t, "deleted", rows[1].OwnerID)

	invs := joinInvestments([]owned[models.Investment]{{ownerID: "x", item: models.Investment{ID: "i"}}}, nil)
	require.Len(t, invs, 1)
	assert.Equal(t, Unknown, invs[0].Email)
}

func TestWithdrawalsAndInvestments(t *testing.T) {
	r := newReview(fixtureAccounts(), nil)
	ctx := context.Background()

	withdrawals, err := r.Withdrawals(ctx)
	require.NoError(t, err)
	require.Len(t, withdrawals, 2)
	assert.Equal(t, "tx_2", withdrawals[0].ID)
	assert.Equal(t, "Jane Smith", withdrawals[1].Name)

	investments, err := r.Investments(ctx)
	require.NoError(t, err)
	require.Len(t, investments, 1)
	assert.Equal(t, "Gold", investments[0].Plan)
	assert.Equal(t, "John Doe", investments[0].Name)
}

func TestPending_AllTypes(t *testing.T) {
	rows, err := newReview(fixtureAccounts(), nil).Pending(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []string{"tx_2", "tx_3", "tx_5"}, ids)
}

func TestUsers_FilterCaseInsensitive(t *testing.T) {
	r := newReview(fixtureAccounts(), nil)
	ctx := context.Background()

	all, err := r.Users(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byName, err := r.Users(ctx, "JANE")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "jane@example.com", byName[0].Email)

	byEmail, err := r.Users(ctx, "Example.COM")
	require.NoError(t, err)
	assert.Len(t, byEmail, 3)

	none, err := r.Users(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearch_RecomputesFromFullCollection(t *testing.T) {
	s, err := NewSearch(context.Background(), newReview(fixtureAccounts(), nil))
	require.NoError(t, err)
	assert.Len(t, s.Results(), 3)

	assert.Len(t, s.SetTerm("john"), 1)
	// A term that does not extend the previous one still sees everybody.
	jane := s.SetTerm("jane")
	require.Len(t, jane, 1)
	assert.Equal(t, "Jane Smith", jane[0].Name)

	assert.Len(t, s.SetTerm(""), 3)
	assert.Equal(t, "", s.Term())
}

func TestStats(t *testing.T) {
	st, err := newReview(fixtureAccounts(), nil).Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, st.TotalUsers)
	assert.Equal(t, 2, st.ActiveUsers)
	assert.True(t, st.TotalDeposits.Equal(dec("1760")))
	assert.True(t, st.TotalWithdrawals.Equal(dec("2000")))
	assert.Equal(t, 1, st.PendingWithdrawals)
	assert.True(t, st.TotalInvested.Equal(dec("2000")))
	assert.True(t, st.TotalProfit.Equal(dec("150.5")))
}

func TestViews_DegradedStoreStillRenders(t *testing.T) {
	storeErr := errors.New("store unavailable")
	r := newReview(fixtureAccounts()[:1], storeErr)

	rows, err := r.Deposits(context.Background())
	assert.ErrorIs(t, err, storeErr)
	assert.Len(t, rows, 1)

	empty := newReview(nil, storeErr)
	st, err := empty.Stats(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, st.TotalUsers)
	assert.True(t, st.TotalDeposits.IsZero())
}
