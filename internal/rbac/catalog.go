package rbac

// Core platform permissions, module.action shaped.
const (
	PermParishesView = "parishes.view"
	PermParishesEdit = "parishes.edit"

	PermWardsView = "wards.view"
	PermWardsEdit = "wards.edit"

	PermFamiliesView   = "families.view"
	PermFamiliesEdit   = "families.edit"
	PermFamiliesImport = "families.import"

	PermParishionersView = "parishioners.view"
	PermParishionersEdit = "parishioners.edit"

	PermAccountsProvision = "accounts.provision"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"

	PermEventsView   = "events.view"
	PermEventsCreate = "events.create"

	PermReportsView = "reports.view"
)

// System role codes. These roles are seeded, immutable and permanent.
const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleParishAdmin  = "PARISH_ADMIN"
	RoleParishioner  = "PARISHIONER"
	RoleFamilyMember = "FAMILY_MEMBER"
)

// CatalogEntry describes one seedable permission.
type CatalogEntry struct {
	Code        string
	Module      string
	Action      string
	Description string
}

// Catalog lists every permission the platform knows about, in seed order.
func Catalog() []CatalogEntry {
	return []CatalogEntry{
		{PermParishesView, "parishes", "view", "View parish records"},
		{PermParishesEdit, "parishes", "edit", "Manage parish records"},
		{PermWardsView, "wards", "view", "View wards"},
		{PermWardsEdit, "wards", "edit", "Manage wards"},
		{PermFamiliesView, "families", "view", "View families"},
		{PermFamiliesEdit, "families", "edit", "Manage families"},
		{PermFamiliesImport, "families", "import", "Bulk import family members"},
		{PermParishionersView, "parishioners", "view", "View parishioners"},
		{PermParishionersEdit, "parishioners", "edit", "Manage parishioners"},
		{PermAccountsProvision, "accounts", "provision", "Provision accounts"},
		{PermRolesView, "roles", "view", "View roles"},
		{PermRolesEdit, "roles", "edit", "Manage roles"},
		{PermPermissionsView, "permissions", "view", "View permissions"},
		{PermPermissionsEdit, "permissions", "edit", "Manage permission overrides"},
		{PermEventsView, "events", "view", "View parish events"},
		{PermEventsCreate, "events", "create", "Create parish events"},
		{PermReportsView, "reports", "view", "View reports"},
	}
}

// SystemRoleSpec describes one seedable system role and its default bindings.
type SystemRoleSpec struct {
	Code        string
	Name        string
	Description string
	Priority    int
	Permissions []string
}

// SystemRoles lists the seeded roles in priority order. SUPER_ADMIN carries
// no explicit bindings: super-administrator accounts are flagged as tenant
// administrators and bypass resolution entirely.
func SystemRoles() []SystemRoleSpec {
	return []SystemRoleSpec{
		{
			Code:        RoleSuperAdmin,
			Name:        "Super Administrator",
			Description: "Cross-parish administrator",
			Priority:    100,
		},
		{
			Code:        RoleParishAdmin,
			Name:        "Parish Administrator",
			Description: "Administers a single parish",
			Priority:    80,
			Permissions: []string{
				PermParishesView, PermParishesEdit,
				PermWardsView, PermWardsEdit,
				PermFamiliesView, PermFamiliesEdit, PermFamiliesImport,
				PermParishionersView, PermParishionersEdit,
				PermAccountsProvision,
				PermRolesView, PermRolesEdit,
				PermPermissionsView, PermPermissionsEdit,
				PermEventsView, PermEventsCreate,
				PermReportsView,
			},
		},
		{
			Code:        RoleParishioner,
			Name:        "Parishioner",
			Description: "Registered parish member",
			Priority:    40,
			Permissions: []string{
				PermParishesView,
				PermWardsView,
				PermFamiliesView,
				PermEventsView,
			},
		},
		{
			Code:        RoleFamilyMember,
			Name:        "Family Member",
			Description: "Bulk-imported family member",
			Priority:    20,
			Permissions: []string{
				PermFamiliesView,
				PermEventsView,
			},
		},
	}
}
