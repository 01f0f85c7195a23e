package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RoleResolver looks up a user's role within a project.
type RoleResolver interface {
	// Resolve returns ErrNotAMember when no membership row exists.
	Resolve(ctx context.Context, userID, projectID uuid.UUID) (Role, error)
}

// MembershipStore manages project membership rows and resolves roles from them.
type MembershipStore struct {
	db       *gorm.DB
	defaults *Defaults
	log      *zap.SugaredLogger
}

func NewMembershipStore(db *gorm.DB, defaults *Defaults, log *zap.SugaredLogger) *MembershipStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &MembershipStore{db: db, defaults: defaults, log: log}
}

// Resolve implements RoleResolver.
func (s *MembershipStore) Resolve(ctx context.Context, userID, projectID uuid.UUID) (Role, error) {
	m, err := s.GetMember(ctx, userID, projectID)
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

// AddMember creates a membership row.
func (s *MembershipStore) AddMember(ctx context.Context, userID, projectID uuid.UUID, role Role) (*ProjectMembership, error) {
	if userID == uuid.Nil || projectID == uuid.Nil || !s.defaults.HasRole(role) {
		return nil, ErrInvalidInput
	}

	m := &ProjectMembership{UserID: userID, ProjectID: projectID, Role: role}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("failed to add project member: %w", err)
	}

	s.log.Infow("project member added", "project_id", projectID, "user_id", userID, "role", role)
	return m, nil
}

// UpdateMemberRole changes the role of an existing member.
func (s *MembershipStore) UpdateMemberRole(ctx context.Context, userID, projectID uuid.UUID, role Role) (*ProjectMembership, error) {
	if !s.defaults.HasRole(role) {
		return nil, ErrInvalidInput
	}

	m, err := s.GetMember(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(m).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("failed to update project member: %w", err)
	}
	m.Role = role

	s.log.Infow("project member role changed", "project_id", projectID, "user_id", userID, "role", role)
	return m, nil
}

// GetMember retrieves the membership row of userID in projectID.
func (s *MembershipStore) GetMember(ctx context.Context, userID, projectID uuid.UUID) (*ProjectMembership, error) {
	if userID == uuid.Nil || projectID == uuid.Nil {
		return nil, ErrInvalidInput
	}

	var m ProjectMembership
	err := s.db.WithContext(ctx).Where("user_id = ? AND project_id = ?", userID, projectID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project membership: %w", err)
	}
	return &m, nil
}

// RemoveMember deletes the membership row of userID in projectID.
func (s *MembershipStore) RemoveMember(ctx context.Context, userID, projectID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("user_id = ? AND project_id = ?", userID, projectID).Delete(&ProjectMembership{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove project member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotAMember
	}

	s.log.Infow("project member removed", "project_id", projectID, "user_id", userID)
	return nil
}

// ListMembers retrieves all members of projectID.
func (s *MembershipStore) ListMembers(ctx context.Context, projectID uuid.UUID) ([]ProjectMembership, error) {
	var members []ProjectMembership
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	return members, nil
}

// DeleteProject removes every membership row of projectID.
func (s *MembershipStore) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&ProjectMembership{}).Error; err != nil {
		return fmt.Errorf("failed to delete project memberships: %w", err)
	}
	return nil
}
