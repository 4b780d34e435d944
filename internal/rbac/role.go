package rbac

// Role is a named grouping of privileges held by a user within a tenant.
// The set is closed: anything outside these constants is rejected on input.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// AllRoles lists every assignable role
func AllRoles() []Role {
	return []Role{RoleViewer, RoleEditor, RoleAdmin, RoleSuperAdmin}
}

// Valid reports whether the role is one of the known constants
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ElevatedRoles are the tenant-scoped roles that stand in for ownership
// in ownership-or-elevated checks.
func ElevatedRoles() []Role {
	return []Role{RoleAdmin, RoleSuperAdmin}
}
