package model

import "time"

// ExchangeEvent is published after every committed exchange and consumed by
// the audit worker. It carries sizes, never message text.
type ExchangeEvent struct {
	UserID     uint      `json:"user_id"`
	SessionID  uint      `json:"session_id"`
	PresetID   uint      `json:"preset_id"`
	ModelID    string    `json:"model_id"`
	PromptSize int       `json:"prompt_size"`
	ReplySize  int       `json:"reply_size"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type ExchangeLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	SessionID  uint      `gorm:"not null;index" json:"session_id"`
	PresetID   uint      `gorm:"not null;index" json:"preset_id"`
	ModelID    string    `gorm:"size:128" json:"model_id"`
	PromptSize int       `json:"prompt_size"`
	ReplySize  int       `json:"reply_size"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
