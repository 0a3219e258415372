package rbac

import "time"

// Status is the lifecycle state shared by catalog and edge rows. Soft
// deletes flip rows to StatusInactive; nothing is hard-deleted while
// referenced.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// OverrideType tags a per-user permission override.
type OverrideType string

const (
	OverrideGrant  OverrideType = "GRANT"
	OverrideRevoke OverrideType = "REVOKE"
)

// Permission represents an atomic capability token, module.action shaped.
// Immutable once referenced by a binding except for status toggling.
type Permission struct {
	ID          int64
	Code        string
	Module      string
	Action      string
	Description string
	Status      Status
	CreatedAt   time.Time
}

// Role represents a named permission bundle, global (TenantID nil) or
// scoped to one parish.
type Role struct {
	ID           int64
	Code         string
	Name         string
	Description  string
	TenantID     *int64
	Priority     int
	IsSystemRole bool
	Status       Status
	CreatedBy    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RolePermission ties a permission to a role. No duplicate edge exists for
// the same pair.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	GrantedBy    *int64
	GrantedAt    time.Time
}

// UserRole links a user to a role, optionally time-bounded.
type UserRole struct {
	ID         int64
	UserID     int64
	RoleID     int64
	AssignedBy *int64
	ExpiresAt  *time.Time
	Status     Status
	AssignedAt time.Time
}

// UserPermission is a direct per-user override. At most one row exists per
// (user, permission, type); re-granting refreshes the grant row and
// deactivates a prior revoke for the pair.
type UserPermission struct {
	ID           int64
	UserID       int64
	PermissionID int64
	Type         OverrideType
	Reason       *string
	AssignedBy   *int64
	ExpiresAt    *time.Time
	Status       Status
	AssignedAt   time.Time
}

// Access is the resolved authorization of a principal: either unrestricted
// (tenant administrator bypass) or scoped to an explicit permission set.
type Access struct {
	Unrestricted bool
	permissions  map[string]struct{}
}

// UnrestrictedAccess returns the bypass variant.
func UnrestrictedAccess() Access {
	return Access{Unrestricted: true}
}

// ScopedAccess returns an Access limited to the given permission codes.
func ScopedAccess(codes []string) Access {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return Access{permissions: set}
}

// Allows reports whether the access includes the permission code.
func (a Access) Allows(code string) bool {
	if a.Unrestricted {
		return true
	}
	_, ok := a.permissions[code]
	return ok
}

// AllowsAny reports whether at least one of the codes is included.
func (a Access) AllowsAny(codes ...string) bool {
	if a.Unrestricted {
		return true
	}
	for _, c := range codes {
		if _, ok := a.permissions[c]; ok {
			return true
		}
	}
	return false
}

// AllowsAll reports whether every code is included.
func (a Access) AllowsAll(codes ...string) bool {
	if a.Unrestricted {
		return true
	}
	for _, c := range codes {
		if _, ok := a.permissions[c]; !ok {
			return false
		}
	}
	return true
}

// Codes returns the scoped permission codes. Empty for unrestricted access.
func (a Access) Codes() []string {
	codes := make([]string, 0, len(a.permissions))
	for c := range a.permissions {
		codes = append(codes, c)
	}
	return codes
}
