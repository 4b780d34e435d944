package model

import (
	"time"

	"github.com/google/uuid"
)

// UserTenantRole assigns a role to a user within a specific tenant.
// A user may hold several roles in the same tenant; the composite unique
// index only guards against duplicate identical rows. Assignments are
// removed with hard deletes so the tuple frees its slot in the unique
// index and the member can be re-added later.
type UserTenantRole struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_user_tenant_role"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_user_tenant_role"`
	Role      string    `json:"role" gorm:"type:varchar(50);not null;uniqueIndex:idx_user_tenant_role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}
