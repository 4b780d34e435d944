package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents the user model stored in the database
type User struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	Email          string         `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	Username       string         `json:"username" gorm:"type:varchar(50);uniqueIndex;not null"`
	HashedPassword string         `json:"-" gorm:"type:varchar(255);not null"`
	FullName       string         `json:"full_name,omitempty" gorm:"type:varchar(100)"`
	IsActive       bool           `json:"is_active"`
	IsSuperuser    bool           `json:"is_superuser" gorm:"default:false"`
	Role           string         `json:"role" gorm:"type:varchar(50);default:'viewer'"` // primary role, kept for legacy single-tenant users
	TenantID       *uuid.UUID     `json:"tenant_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}
