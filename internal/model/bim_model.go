package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BIM processing states
const (
	BIMStatusPending    = "pending"
	BIMStatusProcessing = "processing"
	BIMStatusCompleted  = "completed"
	BIMStatusFailed     = "failed"
)

// BIMModel is an uploaded building-information model. The raw file lives
// in object storage; parsing happens asynchronously in the worker and the
// extracted summary is written back here.
type BIMModel struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	Name       string         `json:"name" gorm:"type:varchar(255);not null"`
	Format     string         `json:"format" gorm:"type:varchar(20)"` // ifc, gltf, obj
	StorageKey string         `json:"-" gorm:"type:varchar(255);uniqueIndex"`
	SizeBytes  int64          `json:"size_bytes"`
	Status     string         `json:"status" gorm:"type:varchar(20);default:'pending'"`
	ParseError string         `json:"parse_error,omitempty" gorm:"type:text"`
	RoomCount  int            `json:"room_count"`
	NodeCount  int            `json:"node_count"`
	HouseID    *uint          `json:"house_id,omitempty" gorm:"index"`
	OwnerID    uint           `json:"owner_id" gorm:"index;not null"`
	TenantID   uuid.UUID      `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}
