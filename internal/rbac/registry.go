package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// Registry manages role lifecycle and role-permission bindings. It
// exclusively owns Role and RolePermission rows.
type Registry struct {
	repo RegistryRepository
}

// NewRegistry constructs a Registry.
func NewRegistry(repo RegistryRepository) *Registry {
	return &Registry{repo: repo}
}

// CreateRoleInput carries the fields for a new custom role.
type CreateRoleInput struct {
	Code        string
	Name        string
	Description string
	TenantID    *int64
	Priority    int
	CreatedBy   *int64
}

// GetByCode resolves a role code in a scope. A nil tenant resolves only
// global roles; a tenant resolves the union of global and its own roles.
func (g *Registry) GetByCode(ctx context.Context, code string, tenantID *int64) (Role, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Role{}, fmt.Errorf("rbac: role code required: %w", shared.ErrValidation)
	}
	return g.repo.GetRoleByCode(ctx, code, tenantID)
}

// GetByID fetches a role by id.
func (g *Registry) GetByID(ctx context.Context, id int64) (Role, error) {
	return g.repo.GetRoleByID(ctx, id)
}

// ListAll returns roles visible in a scope ordered by priority.
func (g *Registry) ListAll(ctx context.Context, tenantID *int64) ([]Role, error) {
	return g.repo.ListRoles(ctx, tenantID)
}

// Create registers a custom role. The role code must be free within the
// requested scope. System roles cannot be created through this path; they
// exist only via catalog seeding.
func (g *Registry) Create(ctx context.Context, input CreateRoleInput) (Role, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" || input.Name == "" {
		return Role{}, fmt.Errorf("rbac: role code and name required: %w", shared.ErrValidation)
	}

	taken, err := g.repo.RoleCodeExists(ctx, input.Code, input.TenantID)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: check role code: %w", err)
	}
	if taken {
		return Role{}, fmt.Errorf("rbac: role code %s already exists in scope: %w", input.Code, shared.ErrDuplicate)
	}

	role := Role{
		Code:         input.Code,
		Name:         input.Name,
		Description:  input.Description,
		TenantID:     input.TenantID,
		Priority:     input.Priority,
		IsSystemRole: false,
		Status:       StatusActive,
		CreatedBy:    input.CreatedBy,
	}
	id, err := g.repo.InsertRole(ctx, role)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: create role: %w", err)
	}
	return g.repo.GetRoleByID(ctx, id)
}

// Update patches a custom role. System roles are immutable.
func (g *Registry) Update(ctx context.Context, id int64, patch RolePatch) (Role, error) {
	role, err := g.repo.GetRoleByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if role.IsSystemRole {
		return Role{}, fmt.Errorf("rbac: system role %s is immutable: %w", role.Code, shared.ErrForbidden)
	}
	if err := g.repo.UpdateRole(ctx, id, patch); err != nil {
		return Role{}, fmt.Errorf("rbac: update role: %w", err)
	}
	return g.repo.GetRoleByID(ctx, id)
}

// SoftDelete deactivates a custom role. Bindings and assignments are left
// in place; the resolver ignores them because it joins on active roles
// only. System roles are permanent.
func (g *Registry) SoftDelete(ctx context.Context, id int64) error {
	role, err := g.repo.GetRoleByID(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return fmt.Errorf("rbac: system role %s cannot be deleted: %w", role.Code, shared.ErrForbidden)
	}
	return g.repo.SetRoleStatus(ctx, id, StatusInactive)
}

// Permissions returns the permissions bound to a role.
func (g *Registry) Permissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := g.repo.GetRoleByID(ctx, roleID); err != nil {
		return nil, err
	}
	return g.repo.ListRolePermissions(ctx, roleID)
}

// SetPermissions replaces the binding set of a role with the given
// permission codes. System roles keep their seeded bindings.
func (g *Registry) SetPermissions(ctx context.Context, roleID int64, codes []string, grantedBy *int64) error {
	role, err := g.repo.GetRoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return fmt.Errorf("rbac: system role %s is immutable: %w", role.Code, shared.ErrForbidden)
	}

	keep := make(map[int64]struct{}, len(codes))
	for _, code := range codes {
		perm, err := g.repo.GetPermissionByCode(ctx, strings.TrimSpace(code))
		if err != nil {
			return err
		}
		keep[perm.ID] = struct{}{}
		if err := g.repo.AttachPermission(ctx, roleID, perm.ID, grantedBy); err != nil {
			return err
		}
	}

	existing, err := g.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return err
	}
	for _, perm := range existing {
		if _, ok := keep[perm.ID]; !ok {
			if err := g.repo.DetachPermission(ctx, roleID, perm.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListCatalog returns the full permission catalog.
func (g *Registry) ListCatalog(ctx context.Context) ([]Permission, error) {
	return g.repo.ListPermissions(ctx)
}

// GetPermission fetches one catalog entry by code.
func (g *Registry) GetPermission(ctx context.Context, code string) (Permission, error) {
	return g.repo.GetPermissionByCode(ctx, strings.TrimSpace(code))
}

// Seed upserts the permission catalog and system roles with their default
// bindings. Safe to run repeatedly; used by the seed script at deploy time.
func (g *Registry) Seed(ctx context.Context) error {
	byCode := make(map[string]Permission, len(Catalog()))
	for _, entry := range Catalog() {
		perm, err := g.repo.UpsertPermission(ctx, entry)
		if err != nil {
			return fmt.Errorf("rbac: seed permission %s: %w", entry.Code, err)
		}
		byCode[perm.Code] = perm
	}

	for _, spec := range SystemRoles() {
		role, err := g.repo.GetRoleByCode(ctx, spec.Code, nil)
		if err != nil {
			role = Role{
				Code:         spec.Code,
				Name:         spec.Name,
				Description:  spec.Description,
				Priority:     spec.Priority,
				IsSystemRole: true,
				Status:       StatusActive,
			}
			id, insErr := g.repo.InsertRole(ctx, role)
			if insErr != nil {
				return fmt.Errorf("rbac: seed role %s: %w", spec.Code, insErr)
			}
			role.ID = id
		}
		for _, code := range spec.Permissions {
			perm, ok := byCode[code]
			if !ok {
				return fmt.Errorf("rbac: seed role %s references unknown permission %s", spec.Code, code)
			}
			if err := g.repo.AttachPermission(ctx, role.ID, perm.ID, nil); err != nil {
				return fmt.Errorf("rbac: seed binding %s -> %s: %w", spec.Code, code, err)
			}
		}
	}
	return nil
}
