package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/observability"
	"github.com/shopspring/decimal"
)

// ReviewTransaction moves a pending transaction to completed or rejected.
// Completing a deposit credits the balance, completing a withdrawal debits it;
// both happen in the same write as the status change. Amounts in another
// currency are converted to models.BaseCurrency first and the stored amount
// is left as entered.
func (s *Service) ReviewTransaction(ctx context.Context, email, txID, status string) (*models.Transaction, error) {
	if status != models.StatusCompleted && status != models.StatusRejected {
		return nil, apperr.NewValidationError("status", fmt.Sprintf("review outcome must be %s or %s", models.StatusCompleted, models.StatusRejected))
	}

	settle := s.settler()
	var (
		reviewed       models.Transaction
		account        models.Account
		balanceChanged bool
	)
	_, err := s.mutate(ctx, "review transaction", func(accounts []models.Account) ([]models.Account, error) {
		idx, err := indexOf(accounts, email)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, fmt.Errorf("review for %s: %w", email, apperr.ErrRecordNotFound)
		}
		acc := &accounts[idx]

		txIdx := transactionIndex(acc.Transactions, txID)
		if txIdx < 0 {
			return nil, fmt.Errorf("transaction %s: %w", txID, apperr.ErrRecordNotFound)
		}
		tx := &acc.Transactions[txIdx]
		if tx.Status != models.StatusPending {
			return nil, fmt.Errorf("transaction %s is already %s: %w", txID, tx.Status, apperr.ErrInvalidTransition)
		}

		balanceChanged = false
		if status == models.StatusCompleted {
			settled, err := settle(ctx, *tx)
			if err != nil {
				return nil, err
			}
			switch tx.Type {
			case models.TxDeposit:
				acc.Balance = acc.Balance.Add(settled)
			case models.TxWithdrawal:
				if acc.Balance.LessThan(settled) {
					return nil, fmt.Errorf("withdrawal %s of %s exceeds balance %s: %w",
						txID, settled.String(), acc.Balance.String(), apperr.ErrInsufficientFunds)
				}
				acc.Balance = acc.Balance.Sub(settled)
			}
			tx.Settled = &settled
			balanceChanged = true
		}

		tx.Status = status
		tx.ReviewedAt = s.Now().Format(time.RFC3339)
		reviewed = *tx
		account = cloneAccount(*acc)
		return accounts, nil
	})
	if err != nil {
		s.logger.Warnf("Review of %s for %s failed: %v", txID, email, err)
		return nil, err
	}

	observability.TransactionsReviewed.WithLabelValues(reviewed.Type, reviewed.Status).Inc()
	s.logger.Infof("Transaction %s of %s marked %s", txID, email, status)

	if balanceChanged {
		return &reviewed, s.notify(ctx, &account)
	}
	return &reviewed, nil
}

// settler converts a transaction amount to models.BaseCurrency, asking the
// converter at most once per currency and amount across write retries.
func (s *Service) settler() func(ctx context.Context, tx models.Transaction) (decimal.Decimal, error) {
	settled := make(map[string]decimal.Decimal)
	return func(ctx context.Context, tx models.Transaction) (decimal.Decimal, error) {
		if strings.EqualFold(tx.Currency, models.BaseCurrency) {
			return tx.Amount, nil
		}
		key := strings.ToUpper(tx.Currency) + " " + tx.Amount.String()
		if v, ok := settled[key]; ok {
			return v, nil
		}
		if s.converter == nil {
			return decimal.Zero, apperr.NewValidationError("currency",
				fmt.Sprintf("cannot settle %s in %s without exchange rates", tx.Currency, models.BaseCurrency))
		}
		v, err := s.converter.Convert(ctx, tx.Amount, tx.Currency, models.BaseCurrency)
		if err != nil {
			return decimal.Zero, fmt.Errorf("settle %s %s: %w", tx.Amount.String(), tx.Currency, err)
		}
		v = v.Round(2)
		if !v.IsPositive() {
			return decimal.Zero, apperr.NewValidationError("amount",
				fmt.Sprintf("%s %s is worth nothing in %s", tx.Amount.String(), tx.Currency, models.BaseCurrency))
		}
		settled[key] = v
		s.logger.Infof("Settled %s %s as %s %s", tx.Amount.String(), tx.Currency, v.String(), models.BaseCurrency)
		return v, nil
	}
}
