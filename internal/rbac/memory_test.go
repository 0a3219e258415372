package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// memoryStore is an in-memory implementation of the rbac repositories.
// Resolution mirrors the storage query: role-derived permissions union
// direct grants, minus active unexpired revokes, filtered to active
// permissions and active roles. now is overridable so tests can move time
// forward.
type memoryStore struct {
	nextID      int64
	roles       map[int64]*Role
	permissions map[int64]*Permission
	bindings    map[[2]int64]*RolePermission
	userRoles   map[int64]*UserRole
	overrides   map[overrideKey]*UserPermission
	now         func() time.Time

	insertRoleErr     error
	insertUserRoleErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles:       make(map[int64]*Role),
		permissions: make(map[int64]*Permission),
		bindings:    make(map[[2]int64]*RolePermission),
		userRoles:   make(map[int64]*UserRole),
		overrides:   make(map[overrideKey]*UserPermission),
		now:         time.Now,
	}
}

func (m *memoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryStore) addPermission(code string, status Status) Permission {
	p := Permission{ID: m.id(), Code: code, Status: status, CreatedAt: m.now()}
	m.permissions[p.ID] = &p
	return p
}

func (m *memoryStore) addRole(code string, tenantID *int64, system bool, status Status) Role {
	r := Role{ID: m.id(), Code: code, Name: code, TenantID: tenantID, IsSystemRole: system, Status: status}
	m.roles[r.ID] = &r
	return r
}

func (m *memoryStore) bind(roleID, permID int64) {
	m.bindings[[2]int64{roleID, permID}] = &RolePermission{RoleID: roleID, PermissionID: permID}
}

func (m *memoryStore) assign(userID, roleID int64, status Status, expiresAt *time.Time) *UserRole {
	ur := &UserRole{ID: m.id(), UserID: userID, RoleID: roleID, Status: status, ExpiresAt: expiresAt, AssignedAt: m.now()}
	m.userRoles[ur.ID] = ur
	return ur
}

type overrideKey struct {
	userID int64
	permID int64
	kind   OverrideType
}

func (m *memoryStore) override(userID, permID int64, kind OverrideType, status Status, expiresAt *time.Time) {
	m.overrides[overrideKey{userID, permID, kind}] = &UserPermission{
		ID: m.id(), UserID: userID, PermissionID: permID, Type: kind, Status: status, ExpiresAt: expiresAt,
	}
}

func (m *memoryStore) GetRoleByID(_ context.Context, id int64) (Role, error) {
	if r, ok := m.roles[id]; ok {
		return *r, nil
	}
	return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
}

func (m *memoryStore) GetRoleByCode(_ context.Context, code string, tenantID *int64) (Role, error) {
	var global *Role
	for _, r := range m.roles {
		if r.Code != code {
			continue
		}
		if r.TenantID == nil {
			global = r
			continue
		}
		if tenantID != nil && *r.TenantID == *tenantID {
			return *r, nil
		}
	}
	if global != nil {
		return *global, nil
	}
	return Role{}, fmt.Errorf("rbac: role %s: %w", code, shared.ErrNotFound)
}

func (m *memoryStore) ListRoles(_ context.Context, tenantID *int64) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		if r.TenantID == nil || (tenantID != nil && *r.TenantID == *tenantID) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (m *memoryStore) RoleCodeExists(_ context.Context, code string, tenantID *int64) (bool, error) {
	for _, r := range m.roles {
		if r.Code != code {
			continue
		}
		if r.TenantID == nil && tenantID == nil {
			return true, nil
		}
		if r.TenantID != nil && tenantID != nil && *r.TenantID == *tenantID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) InsertRole(_ context.Context, role Role) (int64, error) {
	if m.insertRoleErr != nil {
		return 0, m.insertRoleErr
	}
	role.ID = m.id()
	m.roles[role.ID] = &role
	return role.ID, nil
}

func (m *memoryStore) UpdateRole(_ context.Context, id int64, patch RolePatch) error {
	r, ok := m.roles[id]
	if !ok {
		return fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Description != nil {
		r.Description = *patch.Description
	}
	if patch.Priority != nil {
		r.Priority = *patch.Priority
	}
	return nil
}

func (m *memoryStore) SetRoleStatus(_ context.Context, id int64, status Status) error {
	r, ok := m.roles[id]
	if !ok {
		return fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	r.Status = status
	return nil
}

func (m *memoryStore) ListPermissions(_ context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range m.permissions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryStore) GetPermissionByCode(_ context.Context, code string) (Permission, error) {
	for _, p := range m.permissions {
		if p.Code == code {
			return *p, nil
		}
	}
	return Permission{}, fmt.Errorf("rbac: permission %s: %w", code, shared.ErrNotFound)
}

func (m *memoryStore) UpsertPermission(_ context.Context, entry CatalogEntry) (Permission, error) {
	for _, p := range m.permissions {
		if p.Code == entry.Code {
			p.Description = entry.Description
			return *p, nil
		}
	}
	p := Permission{ID: m.id(), Code: entry.Code, Module: entry.Module, Action: entry.Action, Description: entry.Description, Status: StatusActive}
	m.permissions[p.ID] = &p
	return p, nil
}

func (m *memoryStore) ListRolePermissions(_ context.Context, roleID int64) ([]Permission, error) {
	var out []Permission
	for key := range m.bindings {
		if key[0] == roleID {
			if p, ok := m.permissions[key[1]]; ok {
				out = append(out, *p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryStore) AttachPermission(_ context.Context, roleID, permissionID int64, grantedBy *int64) error {
	if _, ok := m.permissions[permissionID]; !ok {
		return fmt.Errorf("rbac: attach permission: %w", shared.ErrNotFound)
	}
	m.bindings[[2]int64{roleID, permissionID}] = &RolePermission{RoleID: roleID, PermissionID: permissionID, GrantedBy: grantedBy}
	return nil
}

func (m *memoryStore) DetachPermission(_ context.Context, roleID, permissionID int64) error {
	delete(m.bindings, [2]int64{roleID, permissionID})
	return nil
}

func (m *memoryStore) FindUserRole(_ context.Context, userID, roleID int64) (*UserRole, error) {
	for _, ur := range m.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			copied := *ur
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) InsertUserRole(_ context.Context, edge UserRole) (int64, error) {
	if m.insertUserRoleErr != nil {
		return 0, m.insertUserRoleErr
	}
	edge.ID = m.id()
	edge.AssignedAt = m.now()
	m.userRoles[edge.ID] = &edge
	return edge.ID, nil
}

func (m *memoryStore) ReactivateUserRole(_ context.Context, id int64, assignedBy *int64, expiresAt *time.Time) error {
	ur, ok := m.userRoles[id]
	if !ok {
		return fmt.Errorf("rbac: user role %d: %w", id, shared.ErrNotFound)
	}
	ur.Status = StatusActive
	ur.AssignedBy = assignedBy
	ur.ExpiresAt = expiresAt
	ur.AssignedAt = m.now()
	return nil
}

func (m *memoryStore) DeactivateUserRole(_ context.Context, userID, roleID int64) error {
	for _, ur := range m.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			ur.Status = StatusInactive
			return nil
		}
	}
	return fmt.Errorf("rbac: user role: %w", shared.ErrNotFound)
}

func (m *memoryStore) DeleteUserRole(_ context.Context, userID, roleID int64) error {
	for id, ur := range m.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			delete(m.userRoles, id)
		}
	}
	return nil
}

func (m *memoryStore) ListUserRoles(_ context.Context, userID int64) ([]UserRole, error) {
	var out []UserRole
	for _, ur := range m.userRoles {
		if ur.UserID == userID {
			out = append(out, *ur)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) UpsertUserPermission(_ context.Context, override UserPermission) (UserPermission, error) {
	key := overrideKey{override.UserID, override.PermissionID, override.Type}
	out := override
	if existing, ok := m.overrides[key]; ok {
		existing.Reason = override.Reason
		existing.AssignedBy = override.AssignedBy
		existing.ExpiresAt = override.ExpiresAt
		existing.Status = StatusActive
		existing.AssignedAt = m.now()
		out = *existing
	} else {
		override.ID = m.id()
		override.Status = StatusActive
		override.AssignedAt = m.now()
		m.overrides[key] = &override
		out = override
	}
	if override.Type == OverrideGrant {
		if revoke, ok := m.overrides[overrideKey{override.UserID, override.PermissionID, OverrideRevoke}]; ok {
			revoke.Status = StatusInactive
		}
	}
	return out, nil
}

func (m *memoryStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, ur := range m.userRoles {
		if ur.Status == StatusActive && ur.ExpiresAt != nil && !ur.ExpiresAt.After(now) {
			ur.Status = StatusInactive
			n++
		}
	}
	for _, up := range m.overrides {
		if up.Status == StatusActive && up.ExpiresAt != nil && !up.ExpiresAt.After(now) {
			up.Status = StatusInactive
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) live(status Status, expiresAt *time.Time) bool {
	if status != StatusActive {
		return false
	}
	return expiresAt == nil || expiresAt.After(m.now())
}

func (m *memoryStore) EffectivePermissionCodes(_ context.Context, userID int64) ([]string, error) {
	candidate := make(map[int64]struct{})
	for _, ur := range m.userRoles {
		if ur.UserID != userID || !m.live(ur.Status, ur.ExpiresAt) {
			continue
		}
		role, ok := m.roles[ur.RoleID]
		if !ok || role.Status != StatusActive {
			continue
		}
		for key := range m.bindings {
			if key[0] == ur.RoleID {
				candidate[key[1]] = struct{}{}
			}
		}
	}
	for _, up := range m.overrides {
		if up.UserID == userID && up.Type == OverrideGrant && m.live(up.Status, up.ExpiresAt) {
			candidate[up.PermissionID] = struct{}{}
		}
	}
	for _, up := range m.overrides {
		if up.UserID == userID && up.Type == OverrideRevoke && m.live(up.Status, up.ExpiresAt) {
			delete(candidate, up.PermissionID)
		}
	}
	var codes []string
	for id := range candidate {
		if p, ok := m.permissions[id]; ok && p.Status == StatusActive {
			codes = append(codes, p.Code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (m *memoryStore) HasEffectivePermission(ctx context.Context, userID int64, code string) (bool, error) {
	codes, err := m.EffectivePermissionCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range codes {
		if c == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ActiveCatalogCodes(_ context.Context) ([]string, error) {
	var codes []string
	for _, p := range m.permissions {
		if p.Status == StatusActive {
			codes = append(codes, p.Code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}
