package repository

import (
	"context"
	"errors"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockedWrite runs write inside a transaction holding a row lock on key.
// current is nil when the key does not exist yet. The transaction commits only
// when write reports a swap; every other outcome rolls back.
func (r *Repository) lockedWrite(ctx context.Context, key string, write func(tx *gorm.DB, current *models.Blob) (bool, error)) (bool, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		r.logger.Errorf("Failed to start transaction for %s: %v", key, tx.Error)
		return false, apperr.NewStoreError("begin "+key, tx.Error)
	}

	var blob models.Blob
	current := &blob
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("key = ?", key).
		First(&blob).
		Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		current = nil
	case err != nil:
		r.rollback(tx, key)
		return false, apperr.NewStoreError("lock "+key, err)
	}

	swapped, err := write(tx, current)
	if err != nil || !swapped {
		r.rollback(tx, key)
		return false, err
	}

	if err := tx.Commit().Error; err != nil {
		r.logger.Errorf("Failed to commit %s: %v", key, err)
		return false, apperr.NewStoreError("commit "+key, err)
	}
	return true, nil
}

func (r *Repository) rollback(tx *gorm.DB, key string) {
	if err := tx.Rollback().Error; err != nil {
		r.logger.Warnf("Rollback of %s failed: %v", key, err)
	}
}
