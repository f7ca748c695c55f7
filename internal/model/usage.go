package model

import "time"

// Usage counts completed exchanges per (user, preset). Count only ever grows,
// and is incremented with a storage-level upsert to stay safe under
// concurrent exchanges.
type Usage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_usage_user_preset" json:"user_id"`
	PresetID  uint      `gorm:"not null;uniqueIndex:idx_usage_user_preset" json:"preset_id"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}
