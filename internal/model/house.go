package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// House represents a managed property. Owned by the creating user and
// scoped to exactly one tenant.
type House struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	Address   string         `json:"address" gorm:"type:varchar(255)"`
	OwnerID   uint           `json:"owner_id" gorm:"index;not null"`
	TenantID  uuid.UUID      `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Room represents a room within a house
type Room struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	Floor     int            `json:"floor"`
	AreaSqm   float64        `json:"area_sqm"`
	HouseID   uint           `json:"house_id" gorm:"index;not null"`
	TenantID  uuid.UUID      `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Node is a physical tag point (NFC/IoT) placed inside a room
type Node struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Description string         `json:"description" gorm:"type:text"`
	NFCTagID    string         `json:"nfc_tag_id" gorm:"type:varchar(100);uniqueIndex"`
	RoomID      uint           `json:"room_id" gorm:"index;not null"`
	HouseID     uint           `json:"house_id" gorm:"index;not null"`
	TenantID    uuid.UUID      `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
