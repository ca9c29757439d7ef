package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/observability"
	"github.com/Fi44er/invest_bot/internal/service"
	"github.com/Fi44er/invest_bot/utils"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// Accounts is the part of the record store the session needs.
type Accounts interface {
	FindAccount(ctx context.Context, email string) (*models.Account, error)
	CreateAccount(ctx context.Context, account models.Account) (*models.Account, error)
	UpsertAccount(ctx context.Context, in service.AccountInput) (*models.Account, error)
}

// Manager holds the session projection of one actor under a single key.
// States are anonymous (no projection) and authenticated.
type Manager struct {
	accounts Accounts
	store    service.BlobStore
	key      string
	cost     int
	logger   *utils.Logger

	onSignIn func(ctx context.Context, email string)
}

func NewManager(accounts Accounts, store service.BlobStore, key string, cost int, logger *utils.Logger) *Manager {
	if key == "" {
		key = models.KeyUserSession
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Manager{
		accounts: accounts,
		store:    store,
		key:      key,
		cost:     cost,
		logger:   logger,
	}
}

func (m *Manager) Key() string {
	return m.key
}

// Register creates an active account with a bcrypt password hash.
func (m *Manager) Register(ctx context.Context, email, name, password string) (*models.Account, error) {
	if len(password) < minPasswordLength {
		return nil, apperr.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return m.accounts.CreateAccount(ctx, models.Account{
		Email:        strings.TrimSpace(email),
		Name:         name,
		PasswordHash: string(hash),
		Status:       models.AccountActive,
	})
}

// SignIn checks the credentials and stores the session projection.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	acc, err := m.accounts.FindAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil || !m.verify(ctx, acc, password) {
		observability.SignIns.WithLabelValues("user", "denied").Inc()
		m.logger.Warnf("Sign-in refused for %s", email)
		return nil, apperr.ErrInvalidCredentials
	}
	if acc.Status == models.AccountBlocked {
		observability.SignIns.WithLabelValues("user", "blocked").Inc()
		return nil, apperr.ErrAccountBlocked
	}

	sess := projection(acc)
	if err := putJSON(ctx, m.store, m.key, sess); err != nil {
		return nil, err
	}
	if m.onSignIn != nil {
		m.onSignIn(ctx, acc.Email)
	}

	observability.SignIns.WithLabelValues("user", "ok").Inc()
	m.logger.Infof("%s signed in (%s)", acc.Email, m.key)
	return sess, nil
}

// verify compares against the bcrypt hash. Records that still carry a
// cleartext password are checked once and rehashed.
func (m *Manager) verify(ctx context.Context, acc *models.Account, password string) bool {
	if acc.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) == nil
	}
	if acc.LegacyPassword == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(acc.LegacyPassword), []byte(password)) != 1 {
		return false
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		m.logger.Errorf("Failed to hash legacy password of %s: %v", acc.Email, err)
		return true
	}
	hashStr := string(hash)
	if _, err := m.accounts.UpsertAccount(ctx, service.AccountInput{Email: acc.Email, PasswordHash: &hashStr}); err != nil {
		m.logger.Errorf("Failed to migrate legacy password of %s: %v", acc.Email, err)
	} else {
		m.logger.Infof("Legacy password of %s migrated to bcrypt", acc.Email)
	}
	return true
}

// SignOut clears the projection. Signing out twice is fine.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.store.Delete(ctx, m.key)
}

// Current returns the session or nil when anonymous. A corrupted projection
// is removed and treated as a sign-out.
func (m *Manager) Current(ctx context.Context) (*models.Session, error) {
	sess, _, err := m.current(ctx)
	return sess, err
}

// current also returns the version the session was read at.
func (m *Manager) current(ctx context.Context) (*models.Session, int64, error) {
	raw, version, err := m.store.Get(ctx, m.key)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return nil, 0, nil
	}

	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.Email == "" {
		m.logger.Warnf("Corrupted session under %s, signing out", m.key)
		if err := m.SignOut(ctx); err != nil {
			m.logger.Errorf("Failed to clear corrupted session %s: %v", m.key, err)
		}
		return nil, 0, nil
	}
	return &sess, version, nil
}

// replace writes next over the session read at version. It never creates the
// key: when the session was signed out or taken over by another account in
// the meantime, nothing is written and replace reports false.
func (m *Manager) replace(ctx context.Context, version int64, next *models.Session) (bool, error) {
	raw, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", m.key, err)
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if version == 0 {
			return false, nil
		}
		swapped, err := m.store.CompareAndSwap(ctx, m.key, version, raw)
		if err != nil {
			return false, err
		}
		if swapped {
			return true, nil
		}

		sess, v, err := m.current(ctx)
		if err != nil {
			return false, err
		}
		if sess == nil || !strings.EqualFold(sess.Email, next.Email) {
			return false, nil
		}
		version = v
	}
	return false, fmt.Errorf("write %s: %w", m.key, apperr.ErrConflict)
}

func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	sess, err := m.Current(ctx)
	return err == nil && sess != nil
}

// Refresh re-reads the owning account. A vanished or blocked account ends the session.
func (m *Manager) Refresh(ctx context.Context) (*models.Session, error) {
	sess, version, err := m.current(ctx)
	if err != nil || sess == nil {
		return nil, err
	}

	acc, err := m.accounts.FindAccount(ctx, sess.Email)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Status == models.AccountBlocked {
		m.logger.Warnf("Account %s no longer usable, signing out", sess.Email)
		return nil, m.SignOut(ctx)
	}

	updated := projection(acc)
	ok, err := m.replace(ctx, version, updated)
	if err != nil || !ok {
		return nil, err
	}
	return updated, nil
}

// SyncBalance is registered as the record store's balance listener. A
// session signed out while the sync runs stays signed out.
func (m *Manager) SyncBalance(ctx context.Context, acc *models.Account) error {
	sess, version, err := m.current(ctx)
	if err != nil {
		return err
	}
	if sess == nil || !strings.EqualFold(sess.Email, acc.Email) {
		return nil
	}
	ok, err := m.replace(ctx, version, projection(acc))
	if err == nil && !ok {
		m.logger.Debugf("Session %s ended before the balance of %s was synced", m.key, acc.Email)
	}
	return err
}

// RequireSession returns the current session or ErrUnauthenticated.
func (m *Manager) RequireSession(ctx context.Context) (*models.Session, error) {
	sess, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.ErrUnauthenticated
	}
	return sess, nil
}

func projection(acc *models.Account) *models.Session {
	name := acc.Name
	if name == "" {
		name = acc.Email
	}
	return &models.Session{
		Email:   acc.Email,
		Name:    name,
		Balance: acc.Balance,
	}
}

// IsCredentialError reports failures that should be shown as "wrong email or password".
func IsCredentialError(err error) bool {
	return errors.Is(err, apperr.ErrInvalidCredentials) || errors.Is(err, apperr.ErrAccountBlocked)
}
