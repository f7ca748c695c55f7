package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leftear-ai/internal/model"
)

type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// IncrementExchange bumps the (user, preset) counter by one, creating the row
// at 1 when absent. The increment runs inside the upsert so concurrent
// exchanges never lose updates.
func (r *UsageRepository) IncrementExchange(userID, presetID uint) error {
	usage := model.Usage{
		UserID:    userID,
		PresetID:  presetID,
		Count:     1,
		UpdatedAt: time.Now(),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "preset_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(&usage).Error
	if err != nil {
		return fmt.Errorf("increment usage failed: %w", err)
	}
	return nil
}

func (r *UsageRepository) GetCount(userID, presetID uint) (int64, error) {
	var usage model.Usage
	err := r.db.Where("user_id = ? AND preset_id = ?", userID, presetID).First(&usage).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("get usage failed: %w", err)
	}
	return usage.Count, nil
}

func (r *UsageRepository) List() ([]model.Usage, error) {
	var usages []model.Usage
	if err := r.db.Order("user_id ASC, preset_id ASC").Find(&usages).Error; err != nil {
		return nil, fmt.Errorf("list usage failed: %w", err)
	}
	return usages, nil
}
