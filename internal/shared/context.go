package shared

import "context"

// Principal describes the authenticated actor attached to a request.
type Principal struct {
	UserID int64
	// TenantID is nil for principals that operate across parishes.
	TenantID *int64
	// TenantAdmin marks accounts that bypass permission resolution and are
	// granted the full catalog.
	TenantAdmin bool
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. Returns nil for
// unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
