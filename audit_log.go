package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLogger records permission-override writes. A nil or disabled logger
// records nothing.
type AuditLogger struct {
	db      *gorm.DB
	enabled bool
	log     *zap.SugaredLogger
}

func NewAuditLogger(db *gorm.DB, enabled bool, log *zap.SugaredLogger) *AuditLogger {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AuditLogger{db: db, enabled: enabled, log: log}
}

// Record creates an audit log entry. Failures are logged and never returned:
// the write being audited has already committed.
func (a *AuditLogger) Record(ctx context.Context, projectID uuid.UUID, action string, details any) {
	if a == nil || !a.enabled {
		return
	}

	raw, err := json.Marshal(details)
	if err != nil {
		a.log.Errorw("failed to encode audit details", "action", action, "error", err)
		raw = []byte("null")
	}
	entry := &AuditLog{
		ProjectID: projectID,
		Action:    action,
		Details:   datatypes.JSON(raw),
	}
	if p, ok := PrincipalFromContext(ctx); ok {
		entry.ActorID = p.Sub
	}
	if err := a.db.WithContext(context.WithoutCancel(ctx)).Create(entry).Error; err != nil {
		a.log.Errorw("failed to record audit log", "project_id", projectID, "action", action, "error", err)
	}
}

// List returns the newest audit entries of projectID first. limit <= 0 means 100.
func (a *AuditLogger) List(ctx context.Context, projectID uuid.UUID, limit int) ([]AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var audits []AuditLog
	err := a.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&audits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return audits, nil
}
