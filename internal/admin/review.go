package admin

import (
	"context"
	"strings"

	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/utils"
	"github.com/shopspring/decimal"
)

// Unknown is rendered for rows whose owner cannot be resolved.
const Unknown = "Unknown"

type Accounts interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// TransactionRow is a transaction joined with its owner.
type TransactionRow struct {
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	models.Transaction
}

type InvestmentRow struct {
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	models.Investment
}

type UserRow struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
	Status  string          `json:"status"`
	Joined  string          `json:"joined"`
}

type Stats struct {
	TotalUsers         int             `json:"totalUsers"`
	ActiveUsers        int             `json:"activeUsers"`
	TotalDeposits      decimal.Decimal `json:"totalDeposits"`
	TotalWithdrawals   decimal.Decimal `json:"totalWithdrawals"`
	PendingWithdrawals int             `json:"pendingWithdrawals"`
	TotalInvested      decimal.Decimal `json:"totalInvested"`
	TotalProfit        decimal.Decimal `json:"totalProfit"`
}

// Review renders read-only views over the record store. A store failure is
// returned together with whatever the store could still serve.
type Review struct {
	accounts Accounts
	logger   *utils.Logger
}

func NewReview(accounts Accounts, logger *utils.Logger) *Review {
	return &Review{accounts: accounts, logger: logger}
}

func (r *Review) list(ctx context.Context) ([]models.Account, error) {
	accounts, err := r.accounts.ListAccounts(ctx)
	if err != nil {
		r.logger.Warnf("Admin view built from a degraded store: %v", err)
	}
	return accounts, err
}

func (r *Review) Deposits(ctx context.Context) ([]TransactionRow, error) {
	accounts, err := r.list(ctx)
	return joinTransactions(flattenTransactions(accounts, models.TxDeposit), accounts), err
}

func (r *Review) Withdrawals(ctx context.Context) ([]TransactionRow, error) {
	accounts, err := r.list(ctx)
	return joinTransactions(flattenTransactions(accounts, models.TxWithdrawal), accounts), err
}

// Pending lists every transaction of any type that still awaits review.
func (r *Review) Pending(ctx context.Context) ([]TransactionRow, error) {
	accounts, err := r.list(ctx)
	var rows []TransactionRow
	for _, row := range joinTransactions(flattenTransactions(accounts, ""), accounts) {
		if row.Status == models.StatusPending {
			rows = append(rows, row)
		}
	}
	return rows, err
}

func (r *Review) Investments(ctx context.Context) ([]InvestmentRow, error) {
	accounts, err := r.list(ctx)
	return joinInvestments(flattenInvestments(accounts), accounts), err
}

// Users filters the full collection by a case-insensitive substring of name
// or email. An empty term returns everyone.
func (r *Review) Users(ctx context.Context, term string) ([]UserRow, error) {
	accounts, err := r.list(ctx)
	return FilterUsers(userRows(accounts), term), err
}

func (r *Review) Stats(ctx context.Context) (Stats, error) {
	accounts, err := r.list(ctx)
	return ComputeStats(accounts), err
}

// ComputeStats sums amounts as stored, regardless of currency.
func ComputeStats(accounts []models.Account) Stats {
	st := Stats{
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		TotalInvested:    decimal.Zero,
		TotalProfit:      decimal.Zero,
	}
	for _, acc := range accounts {
		st.TotalUsers++
		if acc.Status == models.AccountActive {
			st.ActiveUsers++
		}
		for _, tx := range acc.Transactions {
			switch tx.Type {
			case models.TxDeposit:
				st.TotalDeposits = st.TotalDeposits.Add(tx.Amount)
			case models.TxWithdrawal:
				st.TotalWithdrawals = st.TotalWithdrawals.Add(tx.Amount)
				if tx.Status == models.StatusPending {
					st.PendingWithdrawals++
				}
			}
		}
		for _, inv := range acc.Investments {
			st.TotalInvested = st.TotalInvested.Add(inv.Amount)
			st.TotalProfit = st.TotalProfit.Add(inv.Profit)
		}
	}
	return st
}

type owned[T any] struct {
	ownerID string
	item    T
}

// flattenTransactions lists the transactions of the given type (all types
// when txType is empty) together with the owning account id.
func flattenTransactions(accounts []models.Account, txType string) []owned[models.Transaction] {
	var out []owned[models.Transaction]
	for _, acc := range accounts {
		for _, tx := range acc.Transactions {
			if txType != "" && tx.Type != txType {
				continue
			}
			out = append(out, owned[models.Transaction]{ownerID: acc.ID, item: tx})
		}
	}
	return out
}

func flattenInvestments(accounts []models.Account) []owned[models.Investment] {
	var out []owned[models.Investment]
	for _, acc := range accounts {
		for _, inv := range acc.Investments {
			out = append(out, owned[models.Investment]{ownerID: acc.ID, item: inv})
		}
	}
	return out
}

type owner struct {
	name  string
	email string
}

// indexByID skips accounts without an id; records written before ids were
// assigned cannot be referenced.
func indexByID(accounts []models.Account) map[string]owner {
	idx := make(map[string]owner, len(accounts))
	for _, acc := range accounts {
		if acc.ID == "" {
			continue
		}
		if _, taken := idx[acc.ID]; taken {
			continue
		}
		name := acc.Name
		if name == "" {
			name = acc.Email
		}
		idx[acc.ID] = owner{name: name, email: acc.Email}
	}
	return idx
}

func resolve(idx map[string]owner, id string) owner {
	if o, ok := idx[id]; ok {
		return o
	}
	return owner{name: Unknown, email: Unknown}
}

func joinTransactions(records []owned[models.Transaction], accounts []models.Account) []TransactionRow {
	idx := indexByID(accounts)
	rows := make([]TransactionRow, 0, len(records))
	for _, rec := range records {
		o := resolve(idx, rec.ownerID)
		rows = append(rows, TransactionRow{OwnerID: rec.ownerID, Name: o.name, Email: o.email, Transaction: rec.item})
	}
	return rows
}

func joinInvestments(records []owned[models.Investment], accounts []models.Account) []InvestmentRow {
	idx := indexByID(accounts)
	rows := make([]InvestmentRow, 0, len(records))
	for _, rec := range records {
		o := resolve(idx, rec.ownerID)
		rows = append(rows, InvestmentRow{OwnerID: rec.ownerID, Name: o.name, Email: o.email, Investment: rec.item})
	}
	return rows
}

func userRows(accounts []models.Account) []UserRow {
	rows := make([]UserRow, 0, len(accounts))
	for _, acc := range accounts {
		rows = append(rows, UserRow{
			ID:      acc.ID,
			Name:    acc.Name,
			Email:   acc.Email,
			Balance: acc.Balance,
			Status:  acc.Status,
			Joined:  acc.Joined,
		})
	}
	return rows
}

func FilterUsers(users []UserRow, term string) []UserRow {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]UserRow, 0, len(users))
	for _, u := range users {
		if term == "" ||
			strings.Contains(strings.ToLower(u.Name), term) ||
			strings.Contains(strings.ToLower(u.Email), term) {
			out = append(out, u)
		}
	}
	return out
}
