package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var blob models.Blob
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&blob).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, apperr.NewStoreError("get "+key, err)
	}

	return blob.Value, blob.Version, nil
}

// CompareAndSwap writes value only while the stored version equals expected.
// The row is locked for the duration of the check.
func (r *Repository) CompareAndSwap(ctx context.Context, key string, expected int64, value []byte) (bool, error) {
	swapped, err := r.lockedWrite(ctx, key, func(tx *gorm.DB, current *models.Blob) (bool, error) {
		if current == nil {
			if expected != 0 {
				return false, nil
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Blob{
				Key:       key,
				Value:     value,
				Version:   1,
				UpdatedAt: time.Now(),
			})
			if res.Error != nil {
				return false, apperr.NewStoreError("insert "+key, res.Error)
			}
			return res.RowsAffected == 1, nil
		}

		if current.Version != expected {
			return false, nil
		}
		res := tx.Model(&models.Blob{}).
			Where("key = ? AND version = ?", key, expected).
			Updates(map[string]interface{}{
				"value":      value,
				"version":    expected + 1,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return false, apperr.NewStoreError("update "+key, res.Error)
		}
		return res.RowsAffected == 1, nil
	})
	if err != nil || !swapped {
		return false, err
	}

	r.logger.Debugf("Blob %s written at version %d", key, expected+1)
	return true, nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Blob{}).Error; err != nil {
		return apperr.NewStoreError("delete "+key, fmt.Errorf("delete blob: %w", err))
	}
	return nil
}
