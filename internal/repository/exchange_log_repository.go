package repository

import (
	"fmt"

	"gorm.io/gorm"

	"leftear-ai/internal/model"
)

type ExchangeLogRepository struct {
	db *gorm.DB
}

func NewExchangeLogRepository(db *gorm.DB) *ExchangeLogRepository {
	return &ExchangeLogRepository{db: db}
}

func (r *ExchangeLogRepository) Create(entry *model.ExchangeLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("create exchange log failed: %w", err)
	}
	return nil
}
