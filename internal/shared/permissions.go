package shared

// Core platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"

	PermGrantsView = "grants.view"
	PermGrantsEdit = "grants.edit"

	PermAuditView = "audit.view"

	PermDocumentsView = "documents.view"
	PermDocumentsEdit = "documents.edit"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermGrantsView,
		PermGrantsEdit,
		PermAuditView,
		PermDocumentsView,
		PermDocumentsEdit,
	}
}
