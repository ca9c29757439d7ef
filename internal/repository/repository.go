package repository

import (
	"github.com/Fi44er/invest_bot/utils"
	"gorm.io/gorm"
)

// Repository keeps the versioned blobs in postgres.
type Repository struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewRepository(db *gorm.DB, logger *utils.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}
