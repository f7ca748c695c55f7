package app

import (
	"context"
	"errors"
	"strings"

	"leftear-ai/internal/model"
	"leftear-ai/internal/repository"
)

var ErrPresetIncomplete = errors.New("preset requires name, base url, api key and model id")

type PresetCacheStore interface {
	Get(ctx context.Context, presetID uint) (*model.Preset, bool, error)
	Set(ctx context.Context, preset *model.Preset) error
	Delete(ctx context.Context, presetID uint) error
}

// PresetService owns preset reads for the relay and the admin write surface.
type PresetService struct {
	presetRepo *repository.PresetRepository
	usageRepo  *repository.UsageRepository
	userRepo   *repository.UserRepository
	cache      PresetCacheStore
}

func NewPresetService(
	presetRepo *repository.PresetRepository,
	usageRepo *repository.UsageRepository,
	userRepo *repository.UserRepository,
	cache PresetCacheStore,
) *PresetService {
	return &PresetService{
		presetRepo: presetRepo,
		usageRepo:  usageRepo,
		userRepo:   userRepo,
		cache:      cache,
	}
}

// Resolve returns the preset by id, cache-first. (nil, nil) when unknown.
func (s *PresetService) Resolve(ctx context.Context, presetID uint) (*model.Preset, error) {
	if presetID == 0 {
		return nil, nil
	}
	if s.cache != nil {
		if cached, hit, err := s.cache.Get(ctx, presetID); err == nil && hit {
			return cached, nil
		}
	}

	preset, err := s.presetRepo.GetByID(presetID)
	if err != nil {
		return nil, err
	}
	if preset != nil && s.cache != nil {
		_ = s.cache.Set(ctx, preset)
	}
	return preset, nil
}

// ListPublic returns the key-free preset view for the sidebar.
func (s *PresetService) ListPublic() ([]model.PublicPreset, error) {
	presets, err := s.presetRepo.List()
	if err != nil {
		return nil, err
	}
	public := make([]model.PublicPreset, 0, len(presets))
	for i := range presets {
		public = append(public, presets[i].Public())
	}
	return public, nil
}

func (s *PresetService) ListFull() ([]model.Preset, error) {
	return s.presetRepo.List()
}

// Save creates or updates a preset and drops any cached copy.
func (s *PresetService) Save(ctx context.Context, preset *model.Preset) error {
	preset.Name = strings.TrimSpace(preset.Name)
	preset.BaseURL = strings.TrimSpace(preset.BaseURL)
	preset.APIKey = strings.TrimSpace(preset.APIKey)
	preset.ModelID = strings.TrimSpace(preset.ModelID)
	if preset.Name == "" || preset.BaseURL == "" || preset.APIKey == "" || preset.ModelID == "" {
		return ErrPresetIncomplete
	}
	if preset.Icon == "" {
		preset.Icon = "⚡"
	}
	if preset.Description == "" {
		preset.Description = "Custom Model"
	}

	var err error
	if preset.ID == 0 {
		err = s.presetRepo.Create(preset)
	} else {
		err = s.presetRepo.Update(preset)
	}
	if err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, preset.ID)
	}
	return nil
}

func (s *PresetService) Delete(ctx context.Context, presetID uint) error {
	if presetID == 0 {
		return ErrInvalidInput
	}
	if err := s.presetRepo.DeleteByID(presetID); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, presetID)
	}
	return nil
}

// UsageStat is one admin dashboard row.
type UsageStat struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	PresetID   uint   `json:"preset_id"`
	PresetName string `json:"preset_name"`
	Count      int64  `json:"count"`
}

// UsageStats resolves counters to display names for the admin dashboard.
func (s *PresetService) UsageStats() ([]UsageStat, error) {
	usages, err := s.usageRepo.List()
	if err != nil {
		return nil, err
	}
	presets, err := s.presetRepo.List()
	if err != nil {
		return nil, err
	}
	presetNames := make(map[uint]string, len(presets))
	for i := range presets {
		presetNames[presets[i].ID] = presets[i].Name
	}

	stats := make([]UsageStat, 0, len(usages))
	usernames := make(map[uint]string)
	for _, u := range usages {
		name, ok := usernames[u.UserID]
		if !ok {
			user, userErr := s.userRepo.GetByID(u.UserID)
			if userErr == nil && user != nil {
				name = user.Username
			}
			usernames[u.UserID] = name
		}
		stats = append(stats, UsageStat{
			UserID:     u.UserID,
			Username:   name,
			PresetID:   u.PresetID,
			PresetName: presetNames[u.PresetID],
			Count:      u.Count,
		})
	}
	return stats, nil
}
