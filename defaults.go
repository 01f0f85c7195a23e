package rbac

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults is the process-wide default permission table. It is loaded once
// and never mutated; every accessor hands out copies.
type Defaults struct {
	table PermissionMap
}

func allActions() ActionSet {
	return ActionSet{ActionRead: true, ActionCreate: true, ActionUpdate: true, ActionDelete: true}
}

func actions(read, create, update, del bool) ActionSet {
	return ActionSet{ActionRead: read, ActionCreate: create, ActionUpdate: update, ActionDelete: del}
}

// BuiltinPermissions returns the table used when no defaults file is configured.
func BuiltinPermissions() PermissionMap {
	return PermissionMap{
		RoleOwner: {
			ResourceProject:           allActions(),
			ResourceTask:              allActions(),
			ResourceProjectUser:       allActions(),
			ResourceInvite:            allActions(),
			ResourceEpic:              allActions(),
			ResourceProjectPermission: allActions(),
		},
		RoleAdmin: {
			ResourceProject:           actions(true, false, true, false),
			ResourceTask:              allActions(),
			ResourceProjectUser:       allActions(),
			ResourceInvite:            allActions(),
			ResourceEpic:              allActions(),
			ResourceProjectPermission: actions(true, false, false, false),
		},
		RoleUser: {
			ResourceProject:     actions(true, false, false, false),
			ResourceTask:        actions(true, true, true, false),
			ResourceProjectUser: actions(true, false, false, false),
			ResourceInvite:      actions(false, false, false, false),
			ResourceEpic:        actions(true, true, true, false),
		},
		RoleGuest: {
			ResourceProject:     actions(true, false, false, false),
			ResourceTask:        actions(true, false, false, false),
			ResourceProjectUser: actions(true, false, false, false),
			ResourceEpic:        actions(true, false, false, false),
		},
	}
}

// NewDefaults validates table and freezes a private copy of it.
func NewDefaults(table PermissionMap) (*Defaults, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: default permission table is empty", ErrInvalidInput)
	}
	for role, row := range table {
		if role == "" {
			return nil, fmt.Errorf("%w: empty role name in defaults", ErrInvalidInput)
		}
		if err := validateRow(row); err != nil {
			return nil, fmt.Errorf("defaults for role %s: %w", role, err)
		}
	}
	if _, ok := table[RoleOwner]; !ok {
		return nil, fmt.Errorf("%w: defaults must declare role %s", ErrInvalidInput, RoleOwner)
	}
	return &Defaults{table: table.Clone()}, nil
}

// MustBuiltinDefaults returns Defaults over BuiltinPermissions.
func MustBuiltinDefaults() *Defaults {
	d, err := NewDefaults(BuiltinPermissions())
	if err != nil {
		panic(err)
	}
	return d
}

// LoadDefaultsFile reads a YAML table of the form
//
//	OWNER:
//	  TASK: {read: true, create: true, update: true, delete: true}
//
// An empty path yields the built-in table.
func LoadDefaultsFile(path string) (*Defaults, error) {
	if path == "" {
		return NewDefaults(BuiltinPermissions())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file: %w", err)
	}
	var table PermissionMap
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("%w: failed to parse defaults file: %v", ErrInvalidInput, err)
	}
	return NewDefaults(table)
}

// Table returns a copy of the default permission table.
func (d *Defaults) Table() PermissionMap {
	return d.table.Clone()
}

// HasRole reports whether role is declared in the defaults.
func (d *Defaults) HasRole(role Role) bool {
	_, ok := d.table[role]
	return ok
}

// Roles returns the declared roles in lexical order.
func (d *Defaults) Roles() []Role {
	roles := make([]Role, 0, len(d.table))
	for role := range d.table {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

func validateRow(row ResourcePermissions) error {
	for res, set := range row {
		if res == "" {
			return fmt.Errorf("%w: empty resource name", ErrInvalidInput)
		}
		for action := range set {
			if !action.Valid() {
				return fmt.Errorf("%w: unknown action %q on resource %s", ErrInvalidInput, action, res)
			}
		}
	}
	return nil
}
