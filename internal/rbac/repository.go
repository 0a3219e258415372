package rbac

import (
	"context"
	"time"
)

// RolePatch carries the mutable fields of a role. Nil fields are left
// untouched.
type RolePatch struct {
	Name        *string
	Description *string
	Priority    *int
}

// RegistryRepository defines data access for roles, permissions and
// role-permission bindings.
type RegistryRepository interface {
	GetRoleByID(ctx context.Context, id int64) (Role, error)
	// GetRoleByCode resolves a role code. With a nil tenant only global roles
	// match; with a tenant the union of global and that tenant's roles is
	// searched and the tenant's custom role shadows a global one.
	GetRoleByCode(ctx context.Context, code string, tenantID *int64) (Role, error)
	ListRoles(ctx context.Context, tenantID *int64) ([]Role, error)
	RoleCodeExists(ctx context.Context, code string, tenantID *int64) (bool, error)
	InsertRole(ctx context.Context, role Role) (int64, error)
	UpdateRole(ctx context.Context, id int64, patch RolePatch) error
	SetRoleStatus(ctx context.Context, id int64, status Status) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermissionByCode(ctx context.Context, code string) (Permission, error)
	UpsertPermission(ctx context.Context, entry CatalogEntry) (Permission, error)

	ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64, grantedBy *int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
}

// AssignmentRepository defines data access for user-role edges and direct
// permission overrides. This store exclusively owns those rows.
type AssignmentRepository interface {
	FindUserRole(ctx context.Context, userID, roleID int64) (*UserRole, error)
	InsertUserRole(ctx context.Context, edge UserRole) (int64, error)
	ReactivateUserRole(ctx context.Context, id int64, assignedBy *int64, expiresAt *time.Time) error
	DeactivateUserRole(ctx context.Context, userID, roleID int64) error
	DeleteUserRole(ctx context.Context, userID, roleID int64) error
	ListUserRoles(ctx context.Context, userID int64) ([]UserRole, error)

	UpsertUserPermission(ctx context.Context, override UserPermission) (UserPermission, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// ResolverRepository defines the read-side queries of the permission
// resolver. Each method is a single SQL statement so the view is a
// consistent snapshot.
type ResolverRepository interface {
	EffectivePermissionCodes(ctx context.Context, userID int64) ([]string, error)
	HasEffectivePermission(ctx context.Context, userID int64, code string) (bool, error)
	ActiveCatalogCodes(ctx context.Context) ([]string, error)
}
