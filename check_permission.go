package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OverrideFinder loads the stored overrides of a project.
type OverrideFinder interface {
	FindByProject(ctx context.Context, projectID uuid.UUID) ([]ProjectPermissionOverride, error)
}

// Evaluator answers "can user U perform method M on resource R in project P".
type Evaluator struct {
	roles     RoleResolver
	overrides OverrideFinder
	cache     *PermissionCache
	defaults  *Defaults
	log       *zap.SugaredLogger
}

func NewEvaluator(roles RoleResolver, overrides OverrideFinder, cache *PermissionCache, defaults *Defaults, log *zap.SugaredLogger) *Evaluator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Evaluator{roles: roles, overrides: overrides, cache: cache, defaults: defaults, log: log}
}

// Evaluate reports whether userID may perform method on resource within
// projectID. A missing project, an unmapped method or a missing table entry
// deny without error. A user without membership yields ErrNotAMember.
func (e *Evaluator) Evaluate(ctx context.Context, userID, projectID uuid.UUID, method string, resource Resource) (bool, error) {
	if projectID == uuid.Nil {
		return false, nil
	}
	if userID == uuid.Nil {
		return false, ErrUnauthenticated
	}

	role, err := e.roles.Resolve(ctx, userID, projectID)
	if err != nil {
		return false, err
	}

	action, ok := MethodToAction(method)
	if !ok {
		return false, nil
	}

	m, err := e.EffectivePermissions(ctx, projectID)
	if err != nil {
		return false, err
	}
	return m.Allows(role, resource, action), nil
}

// Authorize is Evaluate with a denial turned into ErrPermissionDenied.
func (e *Evaluator) Authorize(ctx context.Context, userID, projectID uuid.UUID, method string, resource Resource) error {
	allowed, err := e.Evaluate(ctx, userID, projectID, method, resource)
	if err != nil {
		return err
	}
	if !allowed {
		e.log.Debugw("permission denied",
			"user_id", userID, "project_id", projectID, "method", method, "resource", resource)
		return ErrPermissionDenied
	}
	return nil
}

// EffectivePermissions returns the normalized map of projectID, computing and
// caching it on a miss. The returned map is shared; callers must not modify it.
func (e *Evaluator) EffectivePermissions(ctx context.Context, projectID uuid.UUID) (PermissionMap, error) {
	return e.cache.Load(ctx, projectID, func(ctx context.Context) (PermissionMap, error) {
		rows, err := e.overrides.FindByProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		e.log.Debugw("computed effective permissions", "project_id", projectID, "overrides", len(rows))
		return e.defaults.Normalize(OverridesByRole(rows)), nil
	})
}

// RolePermissions returns userID's role in projectID and a copy of that
// role's effective row.
func (e *Evaluator) RolePermissions(ctx context.Context, userID, projectID uuid.UUID) (Role, ResourcePermissions, error) {
	role, err := e.roles.Resolve(ctx, userID, projectID)
	if err != nil {
		return "", nil, err
	}
	m, err := e.EffectivePermissions(ctx, projectID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load effective permissions: %w", err)
	}
	return role, m[role].clone(), nil
}
