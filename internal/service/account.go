package service

import (
	"context"
	"fmt"
	"strings"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountInput is a shallow patch for UpsertAccount. Nil fields are left as
// they are on an existing account.
type AccountInput struct {
	Email        string
	Name         *string
	PasswordHash *string
	Balance      *decimal.Decimal
	Status       *string
	Joined       *string
	Transactions []models.Transaction
	Investments  []models.Investment
}

// ListAccounts returns every account. When the backend fails it returns the
// last snapshot it read (possibly empty) together with the store error.
func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	accounts, _, err := s.load(ctx)
	if err == nil {
		return accounts, nil
	}

	if snapshot, ok := s.fallback(); ok {
		observability.StoreFallbacks.Inc()
		s.logger.Warnf("Store unavailable, serving %d accounts from last snapshot: %v", len(snapshot), err)
		return snapshot, err
	}
	return []models.Account{}, err
}

// FindAccount returns the first account whose email matches case-insensitively,
// or nil. On a store failure the lookup runs against the last snapshot and the
// error is returned alongside.
func (s *Service) FindAccount(ctx context.Context, email string) (*models.Account, error) {
	accounts, err := s.ListAccounts(ctx)

	var found *models.Account
	for i := range accounts {
		if !sameEmail(accounts[i].Email, email) {
			continue
		}
		if found != nil {
			s.logger.Errorf("Data integrity violation: several accounts share email %s", email)
			break
		}
		acc := cloneAccount(accounts[i])
		found = &acc
	}
	return found, err
}

// FindAccountByID never matches legacy accounts stored without an id.
func (s *Service) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	if id == "" {
		return nil, nil
	}
	accounts, err := s.ListAccounts(ctx)
	for i := range accounts {
		if accounts[i].ID == id {
			acc := cloneAccount(accounts[i])
			return &acc, err
		}
	}
	return nil, err
}

// CreateAccount inserts a new account and refuses an email that is already taken.
func (s *Service) CreateAccount(ctx context.Context, account models.Account) (*models.Account, error) {
	if err := validateEmail(account.Email); err != nil {
		return nil, err
	}
	if account.Status == "" {
		account.Status = models.AccountActive
	}
	if err := validateAccountStatus(account.Status); err != nil {
		return nil, err
	}
	if account.Balance.IsNegative() {
		return nil, apperr.NewValidationError("balance", "must not be negative")
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Joined == "" {
		account.Joined = s.Today()
	}
	account.Email = strings.TrimSpace(account.Email)

	_, err := s.mutate(ctx, "create account", func(accounts []models.Account) ([]models.Account, error) {
		idx, err := indexOf(accounts, account.Email)
		if err != nil {
			return nil, err
		}
		if idx >= 0 {
			return nil, fmt.Errorf("account %s: %w", account.Email, apperr.ErrDuplicateKey)
		}
		return append(accounts, account), nil
	})
	if err != nil {
		if apperr.IsDuplicate(err) {
			s.logger.Warnf("Account %s already exists", account.Email)
		}
		return nil, err
	}

	s.logger.Infof("Account %s created (%s)", account.Email, account.ID)
	return &account, nil
}

// UpsertAccount merges the supplied fields into the account with the same email
// or appends a new account. The whole list is written back.
func (s *Service) UpsertAccount(ctx context.Context, in AccountInput) (*models.Account, error) {
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if in.Status != nil {
		if err := validateAccountStatus(*in.Status); err != nil {
			return nil, err
		}
	}
	if in.Balance != nil && in.Balance.IsNegative() {
		return nil, apperr.NewValidationError("balance", "must not be negative")
	}

	var result models.Account
	_, err := s.mutate(ctx, "upsert account", func(accounts []models.Account) ([]models.Account, error) {
		idx, err := indexOf(accounts, in.Email)
		if err != nil {
			return nil, err
		}

		if idx < 0 {
			acc := models.Account{
				ID:     uuid.NewString(),
				Email:  strings.TrimSpace(in.Email),
				Status: models.AccountActive,
				Joined: s.Today(),
			}
			applyInput(&acc, in)
			accounts = append(accounts, acc)
			idx = len(accounts) - 1
		} else {
			applyInput(&accounts[idx], in)
			if accounts[idx].ID == "" {
				accounts[idx].ID = uuid.NewString()
			}
		}

		result = cloneAccount(accounts[idx])
		return accounts, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func applyInput(acc *models.Account, in AccountInput) {
	if in.Name != nil {
		acc.Name = *in.Name
	}
	if in.PasswordHash != nil {
		acc.PasswordHash = *in.PasswordHash
		acc.LegacyPassword = ""
	}
	if in.Balance != nil {
		acc.Balance = *in.Balance
	}
	if in.Status != nil {
		acc.Status = *in.Status
	}
	if in.Joined != nil {
		acc.Joined = *in.Joined
	}
	if in.Transactions != nil {
		acc.Transactions = append([]models.Transaction(nil), in.Transactions...)
	}
	if in.Investments != nil {
		acc.Investments = append([]models.Investment(nil), in.Investments...)
	}
}

// AdjustBalance adds delta (which may be negative) to the account balance and
// then resyncs listeners. A listener failure is returned as a SessionSyncError
// together with the balance that was persisted.
func (s *Service) AdjustBalance(ctx context.Context, email string, delta decimal.Decimal) (decimal.Decimal, error) {
	var updated models.Account
	_, err := s.mutate(ctx, "adjust balance", func(accounts []models.Account) ([]models.Account, error) {
		idx, err := indexOf(accounts, email)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, fmt.Errorf("adjust balance of %s: %w", email, apperr.ErrRecordNotFound)
		}
		accounts[idx].Balance = accounts[idx].Balance.Add(delta)
		updated = cloneAccount(accounts[idx])
		return accounts, nil
	})
	if err != nil {
		if apperr.IsNotFound(err) {
			s.logger.Warnf("Balance adjustment for unknown account %s", email)
		}
		return decimal.Zero, err
	}

	s.logger.Infof("Balance of %s adjusted by %s to %s", updated.Email, delta.String(), updated.Balance.String())
	return updated.Balance, s.notify(ctx, &updated)
}

// SetAccountStatus is the administrative block/unblock action.
func (s *Service) SetAccountStatus(ctx context.Context, email, status string) (*models.Account, error) {
	acc, err := s.FindAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("account %s: %w", email, apperr.ErrRecordNotFound)
	}
	return s.UpsertAccount(ctx, AccountInput{Email: email, Status: &status})
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.NewValidationError("email", "is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return apperr.NewValidationError("email", "must look like name@domain")
	}
	return nil
}

func validateAccountStatus(status string) error {
	switch status {
	case models.AccountActive, models.AccountPending, models.AccountBlocked:
		return nil
	}
	return apperr.NewValidationError("status", fmt.Sprintf("unknown account status %q", status))
}
