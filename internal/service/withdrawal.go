package service

import (
	"context"
	"fmt"
	"strings"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/observability"
	"github.com/shopspring/decimal"
)

// PendingWithdrawals sums the account's withdrawals still awaiting review.
func PendingWithdrawals(acc *models.Account) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range acc.Transactions {
		if tx.Type == models.TxWithdrawal && tx.Status == models.StatusPending {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum
}

// AvailableBalance is the balance minus what is already requested for withdrawal.
func AvailableBalance(acc *models.Account) decimal.Decimal {
	return acc.Balance.Sub(PendingWithdrawals(acc))
}

// RequestWithdrawal logs a pending withdrawal in models.BaseCurrency. The
// balance is only debited when an administrator completes it.
func (s *Service) RequestWithdrawal(ctx context.Context, email string, amount decimal.Decimal, currency, method string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.NewValidationError("amount", "must be positive")
	}
	if method == "" {
		return nil, apperr.NewValidationError("method", "is required")
	}
	if !strings.EqualFold(currency, models.BaseCurrency) {
		return nil, apperr.NewValidationError("currency", fmt.Sprintf("withdrawals are paid out in %s", models.BaseCurrency))
	}

	tx := models.Transaction{
		ID:       NewTransactionID(s.Now()),
		Type:     models.TxWithdrawal,
		Amount:   amount,
		Currency: models.BaseCurrency,
		Status:   models.StatusPending,
		Date:     s.Today(),
		Method:   method,
	}
	if err := validateTransaction(tx); err != nil {
		return nil, err
	}

	_, err := s.mutate(ctx, "request withdrawal", func(accounts []models.Account) ([]models.Account, error) {
		idx, err := indexOf(accounts, email)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, fmt.Errorf("request withdrawal for %s: %w", email, apperr.ErrRecordNotFound)
		}

		available := AvailableBalance(&accounts[idx])
		if amount.GreaterThan(available) {
			return nil, fmt.Errorf("requested %s exceeds available %s (balance %s, pending %s): %w",
				amount.String(), available.String(), accounts[idx].Balance.String(),
				PendingWithdrawals(&accounts[idx]).String(), apperr.ErrInsufficientFunds)
		}
		if transactionIndex(accounts[idx].Transactions, tx.ID) >= 0 {
			return nil, fmt.Errorf("transaction %s for %s: %w", tx.ID, email, apperr.ErrDuplicateKey)
		}

		accounts[idx].Transactions = append(accounts[idx].Transactions, tx)
		return accounts, nil
	})
	if err != nil {
		s.logger.Warnf("Withdrawal of %s for %s refused: %v", amount.String(), email, err)
		return nil, err
	}

	observability.WithdrawalsRequested.Inc()
	s.logger.Infof("Withdrawal %s of %s %s requested by %s", tx.ID, amount.String(), currency, email)
	return &tx, nil
}
