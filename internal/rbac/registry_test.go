package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parishdesk/parishdesk/internal/shared"
)

func TestRegistryCreateRejectsDuplicateCodeInScope(t *testing.T) {
	store := newMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	tenant := int64(1)
	_, err := registry.Create(ctx, CreateRoleInput{Code: "CHOIR_LEAD", Name: "Choir Lead", TenantID: &tenant})
	require.NoError(t, err)

	_, err = registry.Create(ctx, CreateRoleInput{Code: "CHOIR_LEAD", Name: "Choir Lead", TenantID: &tenant})
	require.ErrorIs(t, err, shared.ErrDuplicate)

	// The same code is free in another scope.
	other := int64(2)
	_, err = registry.Create(ctx, CreateRoleInput{Code: "CHOIR_LEAD", Name: "Choir Lead", TenantID: &other})
	require.NoError(t, err)
}

func TestRegistrySystemRolesAreImmutable(t *testing.T) {
	store := newMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	role := store.addRole(RoleParishAdmin, nil, true, StatusActive)

	name := "Renamed"
	_, err := registry.Update(ctx, role.ID, RolePatch{Name: &name})
	require.ErrorIs(t, err, shared.ErrForbidden)

	err = registry.SoftDelete(ctx, role.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	err = registry.SetPermissions(ctx, role.ID, []string{PermRolesEdit}, nil)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRegistrySoftDeleteDeactivatesWithoutCascade(t *testing.T) {
	store := newMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	perm := store.addPermission(PermWardsEdit, StatusActive)
	role := store.addRole("CUSTOM", nil, false, StatusActive)
	store.bind(role.ID, perm.ID)
	store.assign(11, role.ID, StatusActive, nil)

	require.NoError(t, registry.SoftDelete(ctx, role.ID))

	got, err := registry.GetByID(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInactive, got.Status)

	// Bindings and assignments stay in place, inert.
	perms, err := store.ListRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	edges, err := store.ListUserRoles(ctx, 11)
	require.NoError(t, err)
	require.Len(t, edges, 1)
}

func TestRegistrySetPermissionsReplacesBindingSet(t *testing.T) {
	store := newMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	view := store.addPermission(PermWardsView, StatusActive)
	edit := store.addPermission(PermWardsEdit, StatusActive)
	store.addPermission(PermFamiliesView, StatusActive)
	role := store.addRole("CUSTOM", nil, false, StatusActive)
	store.bind(role.ID, view.ID)
	store.bind(role.ID, edit.ID)

	require.NoError(t, registry.SetPermissions(ctx, role.ID, []string{PermWardsView, PermFamiliesView}, nil))

	perms, err := registry.Permissions(ctx, role.ID)
	require.NoError(t, err)
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.Code)
	}
	require.ElementsMatch(t, []string{PermWardsView, PermFamiliesView}, codes)
}

func TestRegistrySetPermissionsUnknownCode(t *testing.T) {
	store := newMemoryStore()
	registry := NewRegistry(store)
	role := store.addRole("CUSTOM", nil, false, StatusActive)

	err := registry.SetPermissions(context.Background(), role.ID, []string{"no.such"}, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegistrySeedIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	require.NoError(t, registry.Seed(ctx))
	require.NoError(t, registry.Seed(ctx))

	perms, err := registry.ListCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, perms, len(Catalog()))

	for _, spec := range SystemRoles() {
		role, err := registry.GetByCode(ctx, spec.Code, nil)
		require.NoError(t, err)
		require.True(t, role.IsSystemRole)

		bound, err := registry.Permissions(ctx, role.ID)
		require.NoError(t, err)
		require.Len(t, bound, len(spec.Permissions))
	}
}

func TestRegistryScopeResolution(t *testing.T) {
	store := newMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	tenant := int64(5)
	store.addRole("GREETER", nil, false, StatusActive)
	custom := store.addRole("GREETER", &tenant, false, StatusActive)

	// Without a tenant only the global role resolves.
	role, err := registry.GetByCode(ctx, "GREETER", nil)
	require.NoError(t, err)
	require.Nil(t, role.TenantID)

	// With a tenant the custom role shadows the global one.
	role, err = registry.GetByCode(ctx, "GREETER", &tenant)
	require.NoError(t, err)
	require.Equal(t, custom.ID, role.ID)
}
