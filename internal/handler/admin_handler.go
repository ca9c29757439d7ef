package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Fi44er/invest_bot/internal/admin"
	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/utils"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type AdminAuth interface {
	SignIn(ctx context.Context, email, password string) (*models.AdminSession, error)
	SignOut(ctx context.Context) error
	Current(ctx context.Context) (*models.AdminSession, error)
}

type AdminViews interface {
	Deposits(ctx context.Context) ([]admin.TransactionRow, error)
	Withdrawals(ctx context.Context) ([]admin.TransactionRow, error)
	Pending(ctx context.Context) ([]admin.TransactionRow, error)
	Investments(ctx context.Context) ([]admin.InvestmentRow, error)
	Users(ctx context.Context, term string) ([]admin.UserRow, error)
	Stats(ctx context.Context) (admin.Stats, error)
}

type Ledger interface {
	FindAccountByID(ctx context.Context, id string) (*models.Account, error)
	ReviewTransaction(ctx context.Context, email, txID, status string) (*models.Transaction, error)
	SetAccountStatus(ctx context.Context, email, status string) (*models.Account, error)
	AddInvestment(ctx context.Context, email string, inv models.Investment) (*models.Investment, error)
}

type AdminHandler struct {
	auth   AdminAuth
	views  AdminViews
	ledger Ledger
	tokens *TokenIssuer
	logger *utils.Logger
}

func NewAdminHandler(auth AdminAuth, views AdminViews, ledger Ledger, tokens *TokenIssuer, logger *utils.Logger) *AdminHandler {
	return &AdminHandler{
		auth:   auth,
		views:  views,
		ledger: ledger,
		tokens: tokens,
		logger: logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

// listResponse marks lists served from the last good snapshot as degraded.
type listResponse struct {
	Items    interface{} `json:"items"`
	Degraded bool        `json:"degraded,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type investmentRequest struct {
	Plan      string          `json:"plan"`
	Amount    decimal.Decimal `json:"amount"`
	Profit    decimal.Decimal `json:"profit"`
	Duration  string          `json:"duration"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Status    string          `json:"status"`
}

type reviewResponse struct {
	Transaction       *models.Transaction `json:"transaction"`
	SessionSyncFailed bool                `json:"sessionSyncFailed,omitempty"`
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/login", h.Login).Methods(http.MethodPost)

	protected := router.PathPrefix("/admin").Subrouter()
	protected.Use(h.requireAdmin)
	protected.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	protected.HandleFunc("/deposits", h.ListDeposits).Methods(http.MethodGet)
	protected.HandleFunc("/withdrawals", h.ListWithdrawals).Methods(http.MethodGet)
	protected.HandleFunc("/investments", h.ListInvestments).Methods(http.MethodGet)
	protected.HandleFunc("/pending", h.ListPending).Methods(http.MethodGet)
	protected.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}/status", h.SetStatus).Methods(http.MethodPost)
	protected.HandleFunc("/accounts/{id}/investments", h.AddInvestment).Methods(http.MethodPost)
	protected.HandleFunc("/accounts/{id}/transactions/{txID}/approve", h.reviewWith(models.StatusCompleted)).Methods(http.MethodPost)
	protected.HandleFunc("/accounts/{id}/transactions/{txID}/reject", h.reviewWith(models.StatusRejected)).Methods(http.MethodPost)
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warnf("Invalid admin login request: %v", err)
		utils.WriteError(w, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	sess, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, err, "admin login")
		return
	}

	token, expires, err := h.tokens.Generate(sess.Email, sess.Role)
	if err != nil {
		h.handleServiceError(w, err, "sign admin token")
		return
	}

	utils.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expires.UTC(),
		Email:     sess.Email,
		Role:      sess.Role,
	})
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context()); err != nil {
		h.handleServiceError(w, err, "admin logout")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.views.Users(r.Context(), r.URL.Query().Get("q"))
	h.writeList(w, users, err, "list users")
}

func (h *AdminHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	rows, err := h.views.Deposits(r.Context())
	h.writeList(w, rows, err, "list deposits")
}

func (h *AdminHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	rows, err := h.views.Withdrawals(r.Context())
	h.writeList(w, rows, err, "list withdrawals")
}

func (h *AdminHandler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.views.Investments(r.Context())
	h.writeList(w, rows, err, "list investments")
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	rows, err := h.views.Pending(r.Context())
	h.writeList(w, rows, err, "list pending")
}

func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.views.Stats(r.Context())
	if err != nil && !apperr.IsStoreUnavailable(err) {
		h.handleServiceError(w, err, "stats")
		return
	}
	if err != nil {
		w.Header().Set("X-Degraded", "true")
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	acc, ok := h.accountFromPath(w, r)
	if !ok {
		return
	}

	updated, err := h.ledger.SetAccountStatus(r.Context(), acc.Email, req.Status)
	if err != nil {
		h.handleServiceError(w, err, "set account status")
		return
	}
	h.logger.Infof("Admin %s set %s to %s", AdminFromContext(r.Context()), updated.Email, updated.Status)
	utils.WriteJSON(w, http.StatusOK, admin.UserRow{
		ID:      updated.ID,
		Name:    updated.Name,
		Email:   updated.Email,
		Balance: updated.Balance,
		Status:  updated.Status,
		Joined:  updated.Joined,
	})
}

func (h *AdminHandler) AddInvestment(w http.ResponseWriter, r *http.Request) {
	var req investmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	acc, ok := h.accountFromPath(w, r)
	if !ok {
		return
	}

	inv, err := h.ledger.AddInvestment(r.Context(), acc.Email, models.Investment{
		Plan:      req.Plan,
		Amount:    req.Amount,
		Profit:    req.Profit,
		Duration:  req.Duration,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    req.Status,
	})
	if err != nil {
		h.handleServiceError(w, err, "add investment")
		return
	}
	h.logger.Infof("Admin %s added investment %s for %s", AdminFromContext(r.Context()), inv.ID, acc.Email)
	utils.WriteJSON(w, http.StatusCreated, inv)
}

func (h *AdminHandler) reviewWith(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, ok := h.accountFromPath(w, r)
		if !ok {
			return
		}

		txID := mux.Vars(r)["txID"]
		tx, err := h.ledger.ReviewTransaction(r.Context(), acc.Email, txID, status)
		if err != nil && !apperr.IsSessionSyncError(err) {
			h.handleServiceError(w, err, "review transaction")
			return
		}
		if err != nil {
			h.logger.Warnf("Transaction %s reviewed but session resync failed: %v", txID, err)
		}

		h.logger.Infof("Admin %s marked %s of %s %s", AdminFromContext(r.Context()), txID, acc.Email, status)
		utils.WriteJSON(w, http.StatusOK, reviewResponse{Transaction: tx, SessionSyncFailed: err != nil})
	}
}

func (h *AdminHandler) accountFromPath(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	id := mux.Vars(r)["id"]
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "id is required", "")
		return nil, false
	}
	acc, err := h.ledger.FindAccountByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, "find account")
		return nil, false
	}
	if acc == nil {
		utils.WriteError(w, http.StatusNotFound, "account not found", "")
		return nil, false
	}
	return acc, true
}

func (h *AdminHandler) writeList(w http.ResponseWriter, items interface{}, err error, operation string) {
	if err != nil && !apperr.IsStoreUnavailable(err) {
		h.handleServiceError(w, err, operation)
		return
	}
	utils.WriteJSON(w, http.StatusOK, listResponse{Items: items, Degraded: err != nil})
}

func (h *AdminHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidCredentials):
		utils.WriteError(w, http.StatusUnauthorized, "invalid credentials", "")
	case apperr.IsNotFound(err):
		utils.WriteError(w, http.StatusNotFound, "not found", err.Error())
	case apperr.IsDuplicate(err):
		utils.WriteError(w, http.StatusConflict, "duplicate record", err.Error())
	case apperr.IsValidationError(err):
		utils.WriteError(w, http.StatusBadRequest, "validation error", err.Error())
	case errors.Is(err, apperr.ErrInvalidTransition):
		utils.WriteError(w, http.StatusConflict, "transaction already reviewed", err.Error())
	case errors.Is(err, apperr.ErrInsufficientFunds):
		utils.WriteError(w, http.StatusUnprocessableEntity, "insufficient funds", err.Error())
	case errors.Is(err, apperr.ErrConflict):
		utils.WriteError(w, http.StatusConflict, "concurrent update, retry", "")
	case apperr.IsStoreUnavailable(err):
		h.logger.Errorf("Store unavailable during %s: %v", operation, err)
		utils.WriteError(w, http.StatusServiceUnavailable, "store unavailable", "")
	default:
		h.logger.Errorf("Internal server error during %s: %v", operation, err)
		utils.WriteError(w, http.StatusInternalServerError, "internal server error", "")
	}
}
