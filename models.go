package rbac

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectMembership maps a user to their role within a project.
type ProjectMembership struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_project" json:"userId"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_project;index" json:"projectId"`
	Role      Role      `gorm:"size:32;not null" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProjectPermissionOverride holds a partial resource -> action map that
// replaces the defaults of one role within one project.
type ProjectPermissionOverride struct {
	ID          uuid.UUID                               `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID                               `gorm:"type:uuid;not null;uniqueIndex:idx_override_project_role" json:"projectId"`
	Role        Role                                    `gorm:"size:32;not null;uniqueIndex:idx_override_project_role" json:"role"`
	Permissions datatypes.JSONType[ResourcePermissions] `json:"permissions"`
	CreatedAt   time.Time                               `json:"createdAt"`
	UpdatedAt   time.Time                               `json:"updatedAt"`
}

// AuditLog tracks writes to permission overrides.
type AuditLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID   uuid.UUID      `gorm:"type:uuid;index" json:"actorId"`
	ProjectID uuid.UUID      `gorm:"type:uuid;not null;index" json:"projectId"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
}

func (m *ProjectMembership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (o *ProjectPermissionOverride) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
