package rbac

import "strings"

// Role is a project-scoped membership tier. Roles do not inherit from each
// other; each one carries its own permission row.
type Role string

const (
	RoleOwner Role = "OWNER"
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
	RoleGuest Role = "GUEST"
)

// Resource is the noun an action applies to.
type Resource string

const (
	ResourceProject           Resource = "PROJECT"
	ResourceTask              Resource = "TASK"
	ResourceProjectUser       Resource = "PROJECT_USER"
	ResourceInvite            Resource = "INVITE"
	ResourceEpic              Resource = "EPIC"
	ResourceProjectPermission Resource = "PROJECT_PERMISSION"
)

// Action is the verb derived from an HTTP method or a GraphQL operation kind.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every known action.
var Actions = []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ActionSet maps an action to whether it is granted. Absence means not granted.
type ActionSet map[Action]bool

// ResourcePermissions is one role's row: resource -> action set.
type ResourcePermissions map[Resource]ActionSet

// PermissionMap is the full Role x Resource x Action table.
type PermissionMap map[Role]ResourcePermissions

// MethodToAction maps an HTTP verb or GraphQL operation kind onto an Action.
// The second return value is false for verbs that have no mapping.
func MethodToAction(method string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case "GET", "QUERY":
		return ActionRead, true
	case "POST", "MUTATION":
		return ActionCreate, true
	case "PUT", "PATCH":
		return ActionUpdate, true
	case "DELETE":
		return ActionDelete, true
	}
	return "", false
}

func (s ActionSet) clone() ActionSet {
	if s == nil {
		return nil
	}
	out := make(ActionSet, len(s))
	for a, ok := range s {
		out[a] = ok
	}
	return out
}

func (rp ResourcePermissions) clone() ResourcePermissions {
	if rp == nil {
		return nil
	}
	out := make(ResourcePermissions, len(rp))
	for res, set := range rp {
		out[res] = set.clone()
	}
	return out
}

// Clone returns a deep copy of m.
func (m PermissionMap) Clone() PermissionMap {
	out := make(PermissionMap, len(m))
	for role, row := range m {
		out[role] = row.clone()
	}
	return out
}

// Allows reports whether role may perform action on resource. Missing entries deny.
func (m PermissionMap) Allows(role Role, resource Resource, action Action) bool {
	row, ok := m[role]
	if !ok {
		return false
	}
	set, ok := row[resource]
	if !ok {
		return false
	}
	return set[action]
}
