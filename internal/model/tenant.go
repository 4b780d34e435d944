package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is the isolation boundary under which users and resources are
// partitioned. Every tenant-scoped entity carries exactly one tenant ID.
type Tenant struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string         `json:"description" gorm:"type:text"`
	OwnerID     uint           `json:"owner_id" gorm:"index;not null"`
	Active      bool           `json:"active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns a random tenant ID when none is set
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
