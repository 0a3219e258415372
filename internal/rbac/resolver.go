package rbac

import (
	"context"
	"fmt"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// Resolver computes the effective permission set of a principal. It is a
// read-only projection with no side effects, safe to call on every
// authorization check.
//
// Resolution: permissions bound to the user's active, unexpired roles,
// union direct active unexpired GRANT overrides, minus active unexpired
// REVOKE overrides, filtered to active catalog entries. A REVOKE has
// strictly higher precedence than any grant. Inactive roles contribute
// nothing.
type Resolver struct {
	repo ResolverRepository
}

// NewResolver constructs a Resolver.
func NewResolver(repo ResolverRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the access of a principal. Tenant administrators bypass
// the role and override tables and receive the full active catalog.
func (r *Resolver) Resolve(ctx context.Context, p shared.Principal) (Access, error) {
	if p.TenantAdmin {
		return UnrestrictedAccess(), nil
	}
	codes, err := r.repo.EffectivePermissionCodes(ctx, p.UserID)
	if err != nil {
		return Access{}, fmt.Errorf("rbac: resolve user %d: %w", p.UserID, err)
	}
	return ScopedAccess(codes), nil
}

// Check reports whether the principal holds one permission code. The
// scoped path short-circuits in storage without materializing the set.
func (r *Resolver) Check(ctx context.Context, p shared.Principal, code string) (bool, error) {
	if p.TenantAdmin {
		return true, nil
	}
	ok, err := r.repo.HasEffectivePermission(ctx, p.UserID, code)
	if err != nil {
		return false, fmt.Errorf("rbac: check user %d: %w", p.UserID, err)
	}
	return ok, nil
}

// EffectiveCodes lists the resolved permission codes for display. For a
// tenant administrator this is the full active catalog.
func (r *Resolver) EffectiveCodes(ctx context.Context, p shared.Principal) ([]string, error) {
	if p.TenantAdmin {
		codes, err := r.repo.ActiveCatalogCodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("rbac: catalog codes: %w", err)
		}
		return codes, nil
	}
	codes, err := r.repo.EffectivePermissionCodes(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("rbac: resolve user %d: %w", p.UserID, err)
	}
	return codes, nil
}
