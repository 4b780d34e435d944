package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AIInteraction records one prompt/response exchange with the assistant
type AIInteraction struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	SessionID string         `json:"session_id" gorm:"type:varchar(64);index"`
	Prompt    string         `json:"prompt" gorm:"type:text;not null"`
	Response  string         `json:"response" gorm:"type:text"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	TenantID  uuid.UUID      `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Voice command processing states
const (
	VoiceStatusPending   = "pending"
	VoiceStatusProcessed = "processed"
	VoiceStatusFailed    = "failed"
)

// VoiceCommand is a spoken (or transcribed) command submitted by a user.
// Interpretation happens asynchronously in the worker.
type VoiceCommand struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	Transcript string         `json:"transcript" gorm:"type:text;not null"`
	AudioKey   string         `json:"-" gorm:"type:varchar(255)"` // object storage key, empty for text-only commands
	Status     string         `json:"status" gorm:"type:varchar(20);default:'pending'"`
	Response   string         `json:"response" gorm:"type:text"`
	NodeID     *uint          `json:"node_id,omitempty" gorm:"index"`
	UserID     uint           `json:"user_id" gorm:"index;not null"`
	TenantID   uuid.UUID      `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}
