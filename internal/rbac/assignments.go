package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// Assignments manages per-user role edges and direct permission overrides.
// It exclusively owns UserRole and UserPermission rows.
type Assignments struct {
	repo     AssignmentRepository
	registry RegistryRepository
}

// NewAssignments constructs the assignment store service.
func NewAssignments(repo AssignmentRepository, registry RegistryRepository) *Assignments {
	return &Assignments{repo: repo, registry: registry}
}

// AssignRole binds a role to a user. An identical active, unexpired edge is
// a Conflict; an expired or deactivated edge for the pair is reactivated so
// (user, role) stays unique. Unresolvable role or user ids surface NotFound.
func (a *Assignments) AssignRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error) {
	role, err := a.registry.GetRoleByID(ctx, roleID)
	if err != nil {
		return UserRole{}, err
	}
	if role.Status != StatusActive {
		return UserRole{}, fmt.Errorf("rbac: role %s is inactive: %w", role.Code, shared.ErrNotFound)
	}

	existing, err := a.repo.FindUserRole(ctx, userID, roleID)
	if err != nil {
		return UserRole{}, fmt.Errorf("rbac: find user role: %w", err)
	}
	if existing != nil {
		if existing.Status == StatusActive && !expired(existing.ExpiresAt) {
			return UserRole{}, fmt.Errorf("rbac: user %d already holds role %s: %w", userID, role.Code, shared.ErrDuplicate)
		}
		if err := a.repo.ReactivateUserRole(ctx, existing.ID, assignedBy, expiresAt); err != nil {
			return UserRole{}, fmt.Errorf("rbac: reactivate user role: %w", err)
		}
		refreshed, err := a.repo.FindUserRole(ctx, userID, roleID)
		if err != nil || refreshed == nil {
			return UserRole{}, fmt.Errorf("rbac: reload user role: %w", err)
		}
		return *refreshed, nil
	}

	edge := UserRole{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		ExpiresAt:  expiresAt,
		Status:     StatusActive,
	}
	id, err := a.repo.InsertUserRole(ctx, edge)
	if err != nil {
		return UserRole{}, err
	}
	edge.ID = id
	edge.AssignedAt = time.Now()
	return edge, nil
}

// RemoveRole deactivates a user-role edge.
func (a *Assignments) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return a.repo.DeactivateUserRole(ctx, userID, roleID)
}

// UnbindRole hard-deletes a user-role edge. Reserved for provisioning
// compensation; administrative removal goes through RemoveRole.
func (a *Assignments) UnbindRole(ctx context.Context, userID, roleID int64) error {
	return a.repo.DeleteUserRole(ctx, userID, roleID)
}

// ListRoles returns every role edge for a user.
func (a *Assignments) ListRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	return a.repo.ListUserRoles(ctx, userID)
}

// GrantPermission upserts the GRANT override row for (user, permission)
// and clears any active revoke for the pair, so a re-grant takes effect
// immediately.
func (a *Assignments) GrantPermission(ctx context.Context, userID, permissionID int64, assignedBy *int64, reason *string, expiresAt *time.Time) (UserPermission, error) {
	return a.upsertOverride(ctx, userID, permissionID, OverrideGrant, assignedBy, reason, expiresAt)
}

// RevokePermission upserts a direct REVOKE override for (user, permission).
// An active, unexpired revoke removes the permission from the effective set
// regardless of how many roles grant it.
func (a *Assignments) RevokePermission(ctx context.Context, userID, permissionID int64, assignedBy *int64, reason *string, expiresAt *time.Time) (UserPermission, error) {
	return a.upsertOverride(ctx, userID, permissionID, OverrideRevoke, assignedBy, reason, expiresAt)
}

func (a *Assignments) upsertOverride(ctx context.Context, userID, permissionID int64, kind OverrideType, assignedBy *int64, reason *string, expiresAt *time.Time) (UserPermission, error) {
	if expiresAt != nil && expired(expiresAt) {
		return UserPermission{}, fmt.Errorf("rbac: override expiry in the past: %w", shared.ErrValidation)
	}
	return a.repo.UpsertUserPermission(ctx, UserPermission{
		UserID:       userID,
		PermissionID: permissionID,
		Type:         kind,
		Reason:       reason,
		AssignedBy:   assignedBy,
		ExpiresAt:    expiresAt,
		Status:       StatusActive,
	})
}

// SweepExpired deactivates expired role edges and overrides. Invoked by the
// scheduled cleanup job; resolution never depends on it.
func (a *Assignments) SweepExpired(ctx context.Context) (int64, error) {
	return a.repo.DeactivateExpired(ctx, time.Now())
}

func expired(at *time.Time) bool {
	return at != nil && !at.After(time.Now())
}
