package service

import (
	"context"
	"fmt"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/google/uuid"
)

func (s *Service) AddInvestment(ctx context.Context, email string, inv models.Investment) (*models.Investment, error) {
	if inv.Plan == "" {
		return nil, apperr.NewValidationError("plan", "is required")
	}
	if !inv.Amount.IsPositive() {
		return nil, apperr.NewValidationError("amount", "must be positive")
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.StartDate == "" {
		inv.StartDate = s.Today()
	}
	if inv.Status == "" {
		inv.Status = models.InvestmentActive
	}
	if inv.Status != models.InvestmentActive && inv.Status != models.InvestmentCompleted {
		return nil, apperr.NewValidationError("status", fmt.Sprintf("unknown investment status %q", inv.Status))
	}

	_, err := s.mutate(ctx, "add investment", func(accounts []models.Account) ([]models.Account, error) {
		idx, err := indexOf(accounts, email)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, fmt.Errorf("add investment for %s: %w", email, apperr.ErrRecordNotFound)
		}
		accounts[idx].Investments = append(accounts[idx].Investments, inv)
		return accounts, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Investment %s (%s, %s) added for %s", inv.ID, inv.Plan, inv.Amount.String(), email)
	return &inv, nil
}

func (s *Service) GetUserInvestments(ctx context.Context, email string) ([]models.Investment, error) {
	acc, err := s.FindAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Investments == nil {
		return []models.Investment{}, nil
	}
	return acc.Investments, nil
}
