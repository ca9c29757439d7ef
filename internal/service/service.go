package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/observability"
	"github.com/Fi44er/invest_bot/utils"
	"github.com/shopspring/decimal"
)

const defaultMaxRetries = 5

// BlobStore is a versioned key/value persistence boundary.
// CompareAndSwap only writes while the stored version equals expected (0 = absent).
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, int64, error)
	CompareAndSwap(ctx context.Context, key string, expected int64, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Converter prices an amount in another currency.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Service is the record store: the canonical list of accounts with their
// transactions and investments, persisted as a single JSON blob.
type Service struct {
	store      BlobStore
	logger     *utils.Logger
	now        func() time.Time
	maxRetries int
	converter  Converter

	mu        sync.Mutex
	lastKnown []models.Account
	listeners []models.BalanceListener
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

// WithConverter lets reviews settle transactions made in a currency other
// than models.BaseCurrency.
func WithConverter(c Converter) Option {
	return func(s *Service) { s.converter = c }
}

func NewService(store BlobStore, logger *utils.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		logger:     logger,
		now:        time.Now,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Now() time.Time {
	return s.now().UTC()
}

func (s *Service) Today() string {
	return s.Now().Format(models.DateLayout)
}

// OnBalanceChange registers a listener called after every persisted balance change.
func (s *Service) OnBalanceChange(listener models.BalanceListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// load reads the latest accounts blob. An absent or malformed blob is an empty
// list; the returned version lets the next write replace the malformed value.
func (s *Service) load(ctx context.Context) ([]models.Account, int64, error) {
	raw, version, err := s.store.Get(ctx, models.KeyRegisteredUsers)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return []models.Account{}, version, nil
	}

	var accounts []models.Account
	if err := json.Unmarshal(raw, &accounts); err != nil {
		s.logger.Warnf("Malformed %s blob (version %d), treating as empty: %v", models.KeyRegisteredUsers, version, err)
		return []models.Account{}, version, nil
	}
	if accounts == nil {
		accounts = []models.Account{}
	}

	s.remember(accounts)
	return accounts, version, nil
}

// mutate runs a read-modify-write against the latest persisted list. fn may
// change the slice it receives; returning an error aborts without writing.
func (s *Service) mutate(ctx context.Context, operation string, fn func([]models.Account) ([]models.Account, error)) ([]models.Account, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		accounts, version, err := s.load(ctx)
		if err != nil {
			s.logger.Errorf("%s: failed to read accounts: %v", operation, err)
			return nil, err
		}

		updated, err := fn(accounts)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(updated)
		if err != nil {
			return nil, apperr.NewStoreError(operation, fmt.Errorf("encode accounts: %w", err))
		}

		swapped, err := s.store.CompareAndSwap(ctx, models.KeyRegisteredUsers, version, raw)
		if err != nil {
			s.logger.Errorf("%s: failed to write accounts: %v", operation, err)
			return nil, err
		}
		if swapped {
			s.remember(updated)
			return updated, nil
		}

		observability.StoreConflicts.WithLabelValues(operation).Inc()
		s.logger.Warnf("%s: accounts changed concurrently, retrying (%d/%d)", operation, attempt, s.maxRetries)
	}

	return nil, fmt.Errorf("%s: %w", operation, apperr.ErrConflict)
}

func (s *Service) remember(accounts []models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKnown = cloneAccounts(accounts)
}

func (s *Service) fallback() ([]models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastKnown == nil {
		return nil, false
	}
	return cloneAccounts(s.lastKnown), true
}

func (s *Service) notify(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	listeners := append([]models.BalanceListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, listener := range listeners {
		if err := listener(ctx, account); err != nil {
			s.logger.Errorf("Balance listener failed for %s: %v", account.Email, err)
			return &apperr.SessionSyncError{Email: account.Email, Cause: err}
		}
	}
	return nil
}

// indexOf returns the position of the only account with email, or -1.
// More than one match is an integrity violation and refuses the mutation.
func indexOf(accounts []models.Account, email string) (int, error) {
	idx := -1
	for i := range accounts {
		if !sameEmail(accounts[i].Email, email) {
			continue
		}
		if idx >= 0 {
			return idx, fmt.Errorf("%d and %d share email %s: %w", idx, i, email, apperr.ErrDuplicateKey)
		}
		idx = i
	}
	return idx, nil
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func cloneAccounts(accounts []models.Account) []models.Account {
	out := make([]models.Account, len(accounts))
	for i := range accounts {
		out[i] = cloneAccount(accounts[i])
	}
	return out
}

func cloneAccount(a models.Account) models.Account {
	if a.Transactions != nil {
		a.Transactions = append([]models.Transaction(nil), a.Transactions...)
	}
	if a.Investments != nil {
		a.Investments = append([]models.Investment(nil), a.Investments...)
	}
	return a
}
