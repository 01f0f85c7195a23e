package rbac

// Normalize merges per-role overrides on top of defaults. The result covers
// exactly the roles declared in defaults. Within a role, every resource key of
// the override replaces the default action set wholesale; resources the
// override does not mention keep their default. Neither input is modified.
func Normalize(defaults PermissionMap, overrides map[Role]ResourcePermissions) PermissionMap {
	out := make(PermissionMap, len(defaults))
	for role, defaultRow := range defaults {
		row := defaultRow.clone()
		if row == nil {
			row = ResourcePermissions{}
		}
		for res, set := range overrides[role] {
			row[res] = set.clone()
		}
		out[role] = row
	}
	return out
}

// OverridesByRole indexes stored override rows by role. Later rows for the
// same role win, which cannot happen while the (project, role) unique index holds.
func OverridesByRole(rows []ProjectPermissionOverride) map[Role]ResourcePermissions {
	out := make(map[Role]ResourcePermissions, len(rows))
	for _, row := range rows {
		out[row.Role] = row.Permissions.Data()
	}
	return out
}

// Normalize merges overrides on top of d.
func (d *Defaults) Normalize(overrides map[Role]ResourcePermissions) PermissionMap {
	return Normalize(d.table, overrides)
}
