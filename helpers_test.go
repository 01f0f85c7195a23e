package rbac

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a private in-memory sqlite database with the schema applied.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

// setupTestService builds a Service over a fresh database and memory cache.
func setupTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		DB:                 setupTestDB(t),
		EnableAuditLogging: true,
	})
	require.NoError(t, err)
	return svc
}

type projectFixture struct {
	projectID uuid.UUID
	owner     uuid.UUID
	admin     uuid.UUID
	user      uuid.UUID
	guest     uuid.UUID
	outsider  uuid.UUID
}

// seedProject creates a project with one member per role and one non-member.
func seedProject(t *testing.T, svc *Service) projectFixture {
	t.Helper()
	ctx := context.Background()
	f := projectFixture{
		projectID: uuid.New(),
		owner:     uuid.New(),
		admin:     uuid.New(),
		user:      uuid.New(),
		guest:     uuid.New(),
		outsider:  uuid.New(),
	}
	for id, role := range map[uuid.UUID]Role{f.owner: RoleOwner, f.admin: RoleAdmin, f.user: RoleUser, f.guest: RoleGuest} {
		_, err := svc.Members.AddMember(ctx, id, f.projectID, role)
		require.NoError(t, err)
	}
	return f
}

// staticRoles resolves roles from a fixed map.
type staticRoles map[uuid.UUID]Role

func (s staticRoles) Resolve(_ context.Context, userID, _ uuid.UUID) (Role, error) {
	role, ok := s[userID]
	if !ok {
		return "", ErrNotAMember
	}
	return role, nil
}

// countingFinder returns fixed overrides and counts lookups.
type countingFinder struct {
	mu    sync.Mutex
	rows  []ProjectPermissionOverride
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *countingFinder) FindByProject(ctx context.Context, _ uuid.UUID) ([]ProjectPermissionOverride, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, f.err
}
