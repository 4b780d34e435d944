package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefreshToken is the persisted form of an issued refresh token. Only the
// SHA-256 digest of the token is stored; the plaintext goes to the client
// once and is never recoverable.
type RefreshToken struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TokenHash string         `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	TenantID  *uuid.UUID     `json:"tenant_id,omitempty" gorm:"type:uuid"`
	ExpiresAt time.Time      `json:"expires_at"`
	Revoked   bool           `json:"revoked" gorm:"default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsExpired checks if the token is expired
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsValid checks if the token is valid (not expired and not revoked)
func (t *RefreshToken) IsValid() bool {
	return !t.Revoked && !t.IsExpired()
}
