package model

import "time"

// Preset is an upstream model configuration managed by the admin.
// BaseURL may be a bare host or already carry a custom completions path.
type Preset struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:64;not null" json:"name"`
	Description  string    `gorm:"size:128" json:"description"`
	Icon         string    `gorm:"size:512" json:"icon"`
	BaseURL      string    `gorm:"size:512;not null" json:"base_url"`
	APIKey       string    `gorm:"size:512;not null" json:"api_key"`
	ModelID      string    `gorm:"size:128;not null" json:"model_id"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicPreset is the key-free view returned to non-admin users.
type PublicPreset struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (p *Preset) Public() PublicPreset {
	return PublicPreset{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Icon:        p.Icon,
	}
}
