package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the role registry,
// the assignment store and the resolver read side.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, role_code, name, description, tenant_id, priority, is_system_role, status, created_by, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Code, &r.Name, &r.Description, &r.TenantID, &r.Priority, &r.IsSystemRole, &r.Status, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// GetRoleByID fetches a role by primary key.
func (r *Repository) GetRoleByID(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleByCode resolves a role code within a scope. The tenant's custom
// role shadows a global role with the same code.
func (r *Repository) GetRoleByCode(ctx context.Context, code string, tenantID *int64) (Role, error) {
	var row pgx.Row
	if tenantID == nil {
		row = r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_code = $1 AND tenant_id IS NULL`, code)
	} else {
		row = r.pool.QueryRow(ctx, `
			SELECT `+roleColumns+` FROM roles
			WHERE role_code = $1 AND (tenant_id = $2 OR tenant_id IS NULL)
			ORDER BY tenant_id NULLS LAST
			LIMIT 1`, code, *tenantID)
	}
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %s: %w", code, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns roles visible in a scope, highest priority first.
func (r *Repository) ListRoles(ctx context.Context, tenantID *int64) ([]Role, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if tenantID == nil {
		rows, err = r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id IS NULL ORDER BY priority DESC, role_code`)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id IS NULL OR tenant_id = $1 ORDER BY priority DESC, role_code`, *tenantID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// RoleCodeExists reports whether a role code is already taken in the exact
// scope (global or one tenant).
func (r *Repository) RoleCodeExists(ctx context.Context, code string, tenantID *int64) (bool, error) {
	var exists bool
	var err error
	if tenantID == nil {
		err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE role_code = $1 AND tenant_id IS NULL)`, code).Scan(&exists)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE role_code = $1 AND tenant_id = $2)`, code, *tenantID).Scan(&exists)
	}
	return exists, err
}

// InsertRole creates a role row.
func (r *Repository) InsertRole(ctx context.Context, role Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (role_code, name, description, tenant_id, priority, is_system_role, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		role.Code, role.Name, role.Description, role.TenantID, role.Priority, role.IsSystemRole, role.Status, role.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, mapPgError("rbac: insert role", err)
	}
	return id, nil
}

// UpdateRole applies a patch to the mutable role fields.
func (r *Repository) UpdateRole(ctx context.Context, id int64, patch RolePatch) error {
	query := `UPDATE roles SET updated_at = NOW()`
	var args []any
	argPos := 1
	if patch.Name != nil {
		query += fmt.Sprintf(", name = $%d", argPos)
		args = append(args, *patch.Name)
		argPos++
	}
	if patch.Description != nil {
		query += fmt.Sprintf(", description = $%d", argPos)
		args = append(args, *patch.Description)
		argPos++
	}
	if patch.Priority != nil {
		query += fmt.Sprintf(", priority = $%d", argPos)
		args = append(args, *patch.Priority)
		argPos++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// SetRoleStatus flips the role lifecycle state.
func (r *Repository) SetRoleStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

const permissionColumns = `id, code, module, action, description, status, created_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Code, &p.Module, &p.Action, &p.Description, &p.Status, &p.CreatedAt)
	return p, err
}

// ListPermissions returns the full catalog ordered by code.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetPermissionByCode fetches one catalog entry.
func (r *Repository) GetPermissionByCode(ctx context.Context, code string) (Permission, error) {
	p, err := scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("rbac: permission %s: %w", code, shared.ErrNotFound)
		}
		return Permission{}, err
	}
	return p, nil
}

// UpsertPermission seeds a catalog entry, keeping the description current.
// Permissions are never deleted, only deactivated.
func (r *Repository) UpsertPermission(ctx context.Context, entry CatalogEntry) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `
		INSERT INTO permissions (code, module, action, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description
		RETURNING `+permissionColumns,
		entry.Code, entry.Module, entry.Action, entry.Description, StatusActive,
	))
}

// ListRolePermissions returns the permissions bound to a role.
func (r *Repository) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.code, p.module, p.action, p.description, p.status, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// AttachPermission binds a permission to a role. Duplicate edges are a
// no-op so the binding stays deduplicated.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64, grantedBy *int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_by, granted_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionID, grantedBy)
	return mapPgError("rbac: attach permission", err)
}

// DetachPermission removes a role-permission edge.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

// FindUserRole returns the edge for a (user, role) pair regardless of
// status, or nil when none exists.
func (r *Repository) FindUserRole(ctx context.Context, userID, roleID int64) (*UserRole, error) {
	var ur UserRole
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, role_id, assigned_by, expires_at, status, assigned_at
		FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID,
	).Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.AssignedBy, &ur.ExpiresAt, &ur.Status, &ur.AssignedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ur, nil
}

// InsertUserRole creates a user-role edge.
func (r *Repository) InsertUserRole(ctx context.Context, edge UserRole) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by, expires_at, status, assigned_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`,
		edge.UserID, edge.RoleID, edge.AssignedBy, edge.ExpiresAt, edge.Status,
	).Scan(&id)
	if err != nil {
		return 0, mapPgError("rbac: insert user role", err)
	}
	return id, nil
}

// ReactivateUserRole revives an expired or deactivated edge with fresh
// assignment metadata.
func (r *Repository) ReactivateUserRole(ctx context.Context, id int64, assignedBy *int64, expiresAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_roles SET status = $2, assigned_by = $3, expires_at = $4, assigned_at = NOW()
		WHERE id = $1`, id, StatusActive, assignedBy, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: user role %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// DeactivateUserRole soft-removes a user-role edge.
func (r *Repository) DeactivateUserRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_roles SET status = $3 WHERE user_id = $1 AND role_id = $2`, userID, roleID, StatusInactive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: user role: %w", shared.ErrNotFound)
	}
	return nil
}

// DeleteUserRole hard-deletes a user-role edge. Used by saga compensation
// so a reused account id never inherits a dangling binding.
func (r *Repository) DeleteUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// ListUserRoles returns every edge for a user.
func (r *Repository) ListUserRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, role_id, assigned_by, expires_at, status, assigned_at
		FROM user_roles WHERE user_id = $1 ORDER BY assigned_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []UserRole
	for rows.Next() {
		var ur UserRole
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.AssignedBy, &ur.ExpiresAt, &ur.Status, &ur.AssignedAt); err != nil {
			return nil, err
		}
		edges = append(edges, ur)
	}
	return edges, rows.Err()
}

// UpsertUserPermission writes a direct override keyed by
// (user, permission, type), so at most one GRANT and one REVOKE row exist
// per pair. A fresh GRANT deactivates an active REVOKE for the pair; a
// REVOKE leaves the grant row in place because precedence already makes
// the revoke win while it is live, and a time-bounded revoke restores the
// grant when it expires.
func (r *Repository) UpsertUserPermission(ctx context.Context, override UserPermission) (UserPermission, error) {
	var out UserPermission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, permission_type, reason, assigned_by, expires_at, status, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id, permission_id, permission_type) DO UPDATE
		SET reason = EXCLUDED.reason,
		    assigned_by = EXCLUDED.assigned_by,
		    expires_at = EXCLUDED.expires_at,
		    status = EXCLUDED.status,
		    assigned_at = NOW()
		RETURNING id, user_id, permission_id, permission_type, reason, assigned_by, expires_at, status, assigned_at`,
		override.UserID, override.PermissionID, override.Type, override.Reason, override.AssignedBy, override.ExpiresAt, StatusActive,
	).Scan(&out.ID, &out.UserID, &out.PermissionID, &out.Type, &out.Reason, &out.AssignedBy, &out.ExpiresAt, &out.Status, &out.AssignedAt)
	if err != nil {
		return UserPermission{}, mapPgError("rbac: upsert user permission", err)
	}
	if override.Type == OverrideGrant {
		_, err = r.pool.Exec(ctx, `
			UPDATE user_permissions SET status = $3
			WHERE user_id = $1 AND permission_id = $2 AND permission_type = $4 AND status = $5`,
			override.UserID, override.PermissionID, StatusInactive, OverrideRevoke, StatusActive)
		if err != nil {
			return UserPermission{}, fmt.Errorf("rbac: clear prior revoke: %w", err)
		}
	}
	return out, nil
}

// DeactivateExpired flips expired edges and overrides to inactive. The
// resolver filters expiry at read time regardless; this keeps the tables
// tidy for the admin surface.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tagRoles, err := r.pool.Exec(ctx, `
		UPDATE user_roles SET status = $2
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $3`,
		StatusActive, StatusInactive, now)
	if err != nil {
		return 0, err
	}
	tagPerms, err := r.pool.Exec(ctx, `
		UPDATE user_permissions SET status = $2
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $3`,
		StatusActive, StatusInactive, now)
	if err != nil {
		return tagRoles.RowsAffected(), err
	}
	return tagRoles.RowsAffected() + tagPerms.RowsAffected(), nil
}

// effectiveQuery computes the resolved permission set in one statement:
// role-derived permissions union direct grants, minus active unexpired
// revokes, filtered to active permissions. A single snapshot read, so a
// grant and a revoke are never observed from different points in time.
const effectiveQuery = `
	SELECT p.code
	FROM permissions p
	WHERE p.status = 'ACTIVE'
	  AND p.id IN (
		SELECT rp.permission_id
		FROM role_permissions rp
		JOIN user_roles ur ON ur.role_id = rp.role_id
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		  AND ur.status = 'ACTIVE'
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())
		  AND ro.status = 'ACTIVE'
		UNION
		SELECT up.permission_id
		FROM user_permissions up
		WHERE up.user_id = $1
		  AND up.permission_type = 'GRANT'
		  AND up.status = 'ACTIVE'
		  AND (up.expires_at IS NULL OR up.expires_at > NOW())
	  )
	  AND p.id NOT IN (
		SELECT up.permission_id
		FROM user_permissions up
		WHERE up.user_id = $1
		  AND up.permission_type = 'REVOKE'
		  AND up.status = 'ACTIVE'
		  AND (up.expires_at IS NULL OR up.expires_at > NOW())
	  )`

// EffectivePermissionCodes returns the resolved permission codes for a user.
func (r *Repository) EffectivePermissionCodes(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, effectiveQuery+` ORDER BY p.code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// HasEffectivePermission short-circuits a single-code check without
// materializing the full set.
func (r *Repository) HasEffectivePermission(ctx context.Context, userID int64, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (`+effectiveQuery+` AND p.code = $2)`, userID, code).Scan(&exists)
	return exists, err
}

// ActiveCatalogCodes returns every active permission code. Backs the
// tenant-administrator bypass.
func (r *Repository) ActiveCatalogCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT code FROM permissions WHERE status = 'ACTIVE' ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// mapPgError converts PostgreSQL constraint violations into the shared
// taxonomy: unique violations become Conflict, foreign-key violations mean
// a referenced row does not exist.
func mapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", op, shared.ErrDuplicate)
		case "23503":
			return fmt.Errorf("%s: %w", op, shared.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
