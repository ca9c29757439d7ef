package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Storage keys of the persisted blobs.
const (
	KeyRegisteredUsers = "registeredUsers"
	KeyUserSession     = "user"
	KeyAdminSession    = "admin_user"
	KeySessionChats    = "user_chats" // email -> chat ids signed in through the bot
)

const (
	AccountActive  = "active"
	AccountPending = "pending"
	AccountBlocked = "blocked"
)

const (
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

const (
	InvestmentActive    = "active"
	InvestmentCompleted = "completed"
)

// BaseCurrency is the currency balances are kept in.
const BaseCurrency = "USD"

// DateLayout is the calendar date format used for joined, date, startDate and endDate.
const DateLayout = "2006-01-02"

type Account struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	PasswordHash   string          `json:"passwordHash,omitempty"`
	LegacyPassword string          `json:"password,omitempty"` // cleartext from old records, cleared on first sign-in
	Balance        decimal.Decimal `json:"balance"`
	Status         string          `json:"status"`
	Joined         string          `json:"joined"`

	Transactions []Transaction `json:"transactions,omitempty"`
	Investments  []Investment  `json:"investments,omitempty"`
}

type Transaction struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"` // deposit, withdrawal
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"` // pending, completed, rejected
	Date       string          `json:"date"`
	Method     string          `json:"method"`
	Proof      string          `json:"proof,omitempty"`
	ReviewedAt string          `json:"reviewedAt,omitempty"`

	// Settled is the BaseCurrency amount applied to the balance on completion.
	Settled *decimal.Decimal `json:"settled,omitempty"`
}

type Investment struct {
	ID        string          `json:"id"`
	Plan      string          `json:"plan"`
	Amount    decimal.Decimal `json:"amount"`
	Profit    decimal.Decimal `json:"profit"`
	Duration  string          `json:"duration"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate,omitempty"`
	Status    string          `json:"status"` // active, completed
}

// Session is the cached projection of the signed-in account.
type Session struct {
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type AdminSession struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Blob is one versioned key of the persisted state.
type Blob struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     []byte `gorm:"type:bytea"`
	Version   int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// BalanceListener is notified after an account balance was persisted.
type BalanceListener func(ctx context.Context, account *Account) error
