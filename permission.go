package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RolePermissions is one entry of an upsert payload.
type RolePermissions struct {
	Role        Role                `json:"role"`
	Permissions ResourcePermissions `json:"permissions"`
}

// OverrideStore persists per-project role overrides. Every successful write
// invalidates the project's cache entry before returning.
type OverrideStore struct {
	db       *gorm.DB
	cache    *PermissionCache
	defaults *Defaults
	audit    *AuditLogger
	log      *zap.SugaredLogger
}

func NewOverrideStore(db *gorm.DB, cache *PermissionCache, defaults *Defaults, audit *AuditLogger, log *zap.SugaredLogger) *OverrideStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &OverrideStore{db: db, cache: cache, defaults: defaults, audit: audit, log: log}
}

// Upsert creates or wholesale-replaces the override row of each entry's role.
func (s *OverrideStore) Upsert(ctx context.Context, projectID uuid.UUID, entries []RolePermissions) ([]ProjectPermissionOverride, error) {
	if projectID == uuid.Nil || len(entries) == 0 {
		return nil, ErrInvalidInput
	}
	seen := make(map[Role]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Role]; dup {
			return nil, fmt.Errorf("%w: role %s listed more than once", ErrInvalidInput, e.Role)
		}
		seen[e.Role] = struct{}{}
		if err := s.validate(e.Role, e.Permissions); err != nil {
			return nil, err
		}
	}

	rows := make([]ProjectPermissionOverride, 0, len(entries))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			row, err := upsertRow(tx, projectID, e.Role, e.Permissions)
			if err != nil {
				return err
			}
			rows = append(rows, *row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert permission overrides: %w", err)
	}

	if err := s.invalidate(ctx, projectID); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, projectID, "upsert_permissions", entries)
	s.log.Infow("permission overrides upserted", "project_id", projectID, "roles", len(entries))
	return rows, nil
}

// FindByProject returns every override row of projectID, possibly none.
func (s *OverrideStore) FindByProject(ctx context.Context, projectID uuid.UUID) ([]ProjectPermissionOverride, error) {
	var rows []ProjectPermissionOverride
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("role").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch permission overrides: %w", err)
	}
	return rows, nil
}

// UpdateOne replaces the permissions of an existing (project, role) row.
func (s *OverrideStore) UpdateOne(ctx context.Context, projectID uuid.UUID, role Role, permissions ResourcePermissions) (*ProjectPermissionOverride, error) {
	if projectID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	if err := s.validate(role, permissions); err != nil {
		return nil, err
	}

	var row ProjectPermissionOverride
	db := s.db.WithContext(ctx)
	if err := db.Where("project_id = ? AND role = ?", projectID, role).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOverrideNotFound
		}
		return nil, fmt.Errorf("failed to fetch permission override: %w", err)
	}
	row.Permissions = datatypes.NewJSONType(nonNil(permissions))
	if err := db.Model(&row).Update("permissions", row.Permissions).Error; err != nil {
		return nil, fmt.Errorf("failed to update permission override: %w", err)
	}

	if err := s.invalidate(ctx, projectID); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, projectID, "update_permissions", RolePermissions{Role: role, Permissions: permissions})
	s.log.Infow("permission override updated", "project_id", projectID, "role", role)
	return &row, nil
}

// DeleteAllForProject resets projectID to the defaults.
func (s *OverrideStore) DeleteAllForProject(ctx context.Context, projectID uuid.UUID) error {
	if projectID == uuid.Nil {
		return ErrInvalidInput
	}
	res := s.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&ProjectPermissionOverride{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete permission overrides: %w", res.Error)
	}

	if err := s.invalidate(ctx, projectID); err != nil {
		return err
	}
	s.audit.Record(ctx, projectID, "reset_permissions", map[string]int64{"deleted": res.RowsAffected})
	s.log.Infow("permission overrides reset", "project_id", projectID, "deleted", res.RowsAffected)
	return nil
}

func (s *OverrideStore) invalidate(ctx context.Context, projectID uuid.UUID) error {
	if err := s.cache.Invalidate(ctx, projectID); err != nil {
		return fmt.Errorf("permission overrides saved but cache invalidation failed: %w", err)
	}
	return nil
}

func (s *OverrideStore) validate(role Role, permissions ResourcePermissions) error {
	if !s.defaults.HasRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := validateRow(permissions); err != nil {
		return err
	}
	// The owner must keep the right to manage permissions.
	if role == RoleOwner {
		if set, ok := permissions[ResourceProjectPermission]; ok && !set[ActionUpdate] {
			return fmt.Errorf("%w: %s cannot revoke its own %s update permission", ErrInvalidInput, RoleOwner, ResourceProjectPermission)
		}
	}
	return nil
}

func upsertRow(tx *gorm.DB, projectID uuid.UUID, role Role, permissions ResourcePermissions) (*ProjectPermissionOverride, error) {
	doc := datatypes.NewJSONType(nonNil(permissions))

	var row ProjectPermissionOverride
	err := tx.Where("project_id = ? AND role = ?", projectID, role).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = ProjectPermissionOverride{ProjectID: projectID, Role: role, Permissions: doc}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		row.Permissions = doc
		if err := tx.Model(&row).Update("permissions", doc).Error; err != nil {
			return nil, err
		}
	}
	return &row, nil
}

func nonNil(p ResourcePermissions) ResourcePermissions {
	if p == nil {
		return ResourcePermissions{}
	}
	return p
}
