package service

import (
	"context"
	"fmt"
	"time"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
)

// NewTransactionID derives a transaction id from the clock. It is only
// probably unique; AppendTransaction refuses a repeat within one account.
func NewTransactionID(now time.Time) string {
	return fmt.Sprintf("tx_%d", now.UnixMilli())
}

// AppendTransaction adds tx to the account's history. A missing account is
// reported as ErrRecordNotFound and leaves the store untouched.
func (s *Service) AppendTransaction(ctx context.Context, email string, tx models.Transaction) error {
	if err := validateTransaction(tx); err != nil {
		return err
	}

	_, err := s.mutate(ctx, "append transaction", func(accounts []models.Account) ([]models.Account, error) {
		idx, err := indexOf(accounts, email)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, fmt.Errorf("append transaction for %s: %w", email, apperr.ErrRecordNotFound)
		}
		for _, existing := range accounts[idx].Transactions {
			if existing.ID == tx.ID {
				return nil, fmt.Errorf("transaction %s for %s: %w", tx.ID, email, apperr.ErrDuplicateKey)
			}
		}
		accounts[idx].Transactions = append(accounts[idx].Transactions, tx)
		return accounts, nil
	})
	if err != nil {
		s.logger.Warnf("Transaction %s not recorded for %s: %v", tx.ID, email, err)
		return err
	}

	s.logger.Infof("Transaction %s (%s %s %s, %s) recorded for %s", tx.ID, tx.Type, tx.Amount.String(), tx.Currency, tx.Status, email)
	return nil
}

// AttachProof stores a reference to the uploaded payment proof. The
// transaction status is left as it is.
func (s *Service) AttachProof(ctx context.Context, email, txID, ref string) error {
	_, err := s.mutate(ctx, "attach proof", func(accounts []models.Account) ([]models.Account, error) {
		idx, err := indexOf(accounts, email)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, fmt.Errorf("attach proof for %s: %w", email, apperr.ErrRecordNotFound)
		}
		txIdx := transactionIndex(accounts[idx].Transactions, txID)
		if txIdx < 0 {
			return nil, fmt.Errorf("transaction %s: %w", txID, apperr.ErrRecordNotFound)
		}
		accounts[idx].Transactions[txIdx].Proof = ref
		return accounts, nil
	})
	if err != nil {
		s.logger.Warnf("Proof for %s not attached: %v", txID, err)
		return err
	}
	return nil
}

func (s *Service) GetUserTransactions(ctx context.Context, email string) ([]models.Transaction, error) {
	acc, err := s.FindAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return []models.Transaction{}, nil
	}
	if acc.Transactions == nil {
		return []models.Transaction{}, nil
	}
	return acc.Transactions, nil
}

func transactionIndex(txs []models.Transaction, id string) int {
	for i := range txs {
		if txs[i].ID == id {
			return i
		}
	}
	return -1
}

func validateTransaction(tx models.Transaction) error {
	if tx.ID == "" {
		return apperr.NewValidationError("id", "is required")
	}
	if tx.Type != models.TxDeposit && tx.Type != models.TxWithdrawal {
		return apperr.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", tx.Type))
	}
	if !tx.Amount.IsPositive() {
		return apperr.NewValidationError("amount", "must be positive")
	}
	if tx.Currency == "" {
		return apperr.NewValidationError("currency", "is required")
	}
	switch tx.Status {
	case models.StatusPending, models.StatusCompleted, models.StatusRejected:
	default:
		return apperr.NewValidationError("status", fmt.Sprintf("unknown transaction status %q", tx.Status))
	}
	return nil
}
