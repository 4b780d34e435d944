package rbac

// Permission is an action label resolved to a set of authorized roles.
// Like Role, the set is closed.
type Permission string

const (
	PermReadDocuments   Permission = "read_documents"
	PermWriteDocuments  Permission = "write_documents"
	PermDeleteDocuments Permission = "delete_documents"
	PermManageHouses    Permission = "manage_houses"
	PermManageNodes     Permission = "manage_nodes"
	PermUploadBIM       Permission = "upload_bim"
	PermManageUsers     Permission = "manage_users"
	PermUseVoice        Permission = "use_voice"
	PermManageAI        Permission = "manage_ai"
)

// Valid reports whether the permission is one of the known constants
func (p Permission) Valid() bool {
	switch p {
	case PermReadDocuments, PermWriteDocuments, PermDeleteDocuments,
		PermManageHouses, PermManageNodes, PermUploadBIM,
		PermManageUsers, PermUseVoice, PermManageAI:
		return true
	}
	return false
}

func (p Permission) String() string {
	return string(p)
}

// PermissionMap resolves a permission to the roles allowed to exercise it.
// It is injected into the Authorizer at construction so deployments can
// override the defaults without a code change.
type PermissionMap map[Permission][]Role

// DefaultPermissionMap returns the stock permission-to-roles table
func DefaultPermissionMap() PermissionMap {
	return PermissionMap{
		PermReadDocuments:   {RoleViewer, RoleEditor, RoleAdmin, RoleSuperAdmin},
		PermWriteDocuments:  {RoleEditor, RoleAdmin, RoleSuperAdmin},
		PermDeleteDocuments: {RoleAdmin, RoleSuperAdmin},
		PermManageHouses:    {RoleEditor, RoleAdmin, RoleSuperAdmin},
		PermManageNodes:     {RoleEditor, RoleAdmin, RoleSuperAdmin},
		PermUploadBIM:       {RoleEditor, RoleAdmin, RoleSuperAdmin},
		PermManageUsers:     {RoleAdmin, RoleSuperAdmin},
		PermUseVoice:        {RoleViewer, RoleEditor, RoleAdmin, RoleSuperAdmin},
		PermManageAI:        {RoleAdmin, RoleSuperAdmin},
	}
}
