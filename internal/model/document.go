package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is a stored file (manuals, certificates, plans). The content
// lives in object storage under StorageKey; only metadata is persisted here.
type Document struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	MimeType    string         `json:"mime_type" gorm:"type:varchar(100)"`
	SizeBytes   int64          `json:"size_bytes"`
	StorageKey  string         `json:"-" gorm:"type:varchar(255);uniqueIndex"`
	Checksum    string         `json:"checksum" gorm:"type:varchar(64)"`
	HouseID     *uint          `json:"house_id,omitempty" gorm:"index"`
	OwnerID     uint           `json:"owner_id" gorm:"index;not null"`
	TenantID    uuid.UUID      `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
