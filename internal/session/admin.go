package session

import (
	"context"
	"encoding/json"
	"strings"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/observability"
	"github.com/Fi44er/invest_bot/internal/service"
	"github.com/Fi44er/invest_bot/utils"
	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

// AdminManager keeps the administrator's session under admin_user.
type AdminManager struct {
	store        service.BlobStore
	email        string
	passwordHash string
	logger       *utils.Logger
}

func NewAdminManager(store service.BlobStore, email, passwordHash string, logger *utils.Logger) *AdminManager {
	return &AdminManager{
		store:        store,
		email:        email,
		passwordHash: passwordHash,
		logger:       logger,
	}
}

func (a *AdminManager) SignIn(ctx context.Context, email, password string) (*models.AdminSession, error) {
	if a.email == "" || a.passwordHash == "" ||
		!strings.EqualFold(strings.TrimSpace(email), a.email) ||
		bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) != nil {
		observability.SignIns.WithLabelValues("admin", "denied").Inc()
		a.logger.Warnf("Admin sign-in refused for %s", email)
		return nil, apperr.ErrInvalidCredentials
	}

	sess := &models.AdminSession{Email: a.email, Role: RoleAdmin}
	if err := putJSON(ctx, a.store, models.KeyAdminSession, sess); err != nil {
		return nil, err
	}

	observability.SignIns.WithLabelValues("admin", "ok").Inc()
	a.logger.Infof("Admin %s signed in", a.email)
	return sess, nil
}

func (a *AdminManager) SignOut(ctx context.Context) error {
	return a.store.Delete(ctx, models.KeyAdminSession)
}

func (a *AdminManager) Current(ctx context.Context) (*models.AdminSession, error) {
	raw, _, err := a.store.Get(ctx, models.KeyAdminSession)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var sess models.AdminSession
	if err := json.Unmarshal(raw, &sess); err != nil || sess.Email == "" || sess.Role != RoleAdmin {
		a.logger.Warn("Corrupted admin session, signing out")
		if err := a.SignOut(ctx); err != nil {
			a.logger.Errorf("Failed to clear admin session: %v", err)
		}
		return nil, nil
	}
	return &sess, nil
}
