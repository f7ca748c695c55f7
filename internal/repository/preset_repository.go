package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"leftear-ai/internal/model"
)

type PresetRepository struct {
	db *gorm.DB
}

func NewPresetRepository(db *gorm.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

func (r *PresetRepository) Create(preset *model.Preset) error {
	if err := r.db.Create(preset).Error; err != nil {
		return fmt.Errorf("create preset failed: %w", err)
	}
	return nil
}

func (r *PresetRepository) Update(preset *model.Preset) error {
	if err := r.db.Save(preset).Error; err != nil {
		return fmt.Errorf("update preset failed: %w", err)
	}
	return nil
}

func (r *PresetRepository) GetByID(id uint) (*model.Preset, error) {
	var preset model.Preset
	if err := r.db.First(&preset, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get preset failed: %w", err)
	}
	return &preset, nil
}

func (r *PresetRepository) List() ([]model.Preset, error) {
	var presets []model.Preset
	if err := r.db.Order("id ASC").Find(&presets).Error; err != nil {
		return nil, fmt.Errorf("list presets failed: %w", err)
	}
	return presets, nil
}

func (r *PresetRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&model.Preset{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count presets failed: %w", err)
	}
	return n, nil
}

func (r *PresetRepository) DeleteByID(id uint) error {
	if err := r.db.Delete(&model.Preset{}, id).Error; err != nil {
		return fmt.Errorf("delete preset failed: %w", err)
	}
	return nil
}
