package rbac

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrations returns the schema migrations for the engine's tables, in order.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "20250301_create_project_memberships",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ProjectMembership{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("project_memberships")
			},
		},
		{
			ID: "20250301_create_project_permission_overrides",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ProjectPermissionOverride{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("project_permission_overrides")
			},
		},
		{
			ID: "20250315_create_audit_logs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&AuditLog{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("audit_logs")
			},
		},
	}
}

// Migrate applies every pending migration.
func Migrate(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, Migrations()).Migrate()
}
