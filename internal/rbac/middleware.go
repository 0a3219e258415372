package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/parishdesk/parishdesk/internal/platform/httpx"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// DecisionRecorder counts authorization outcomes. Satisfied by
// observability.Metrics; nil disables recording.
type DecisionRecorder interface {
	AuthzDecision(allowed bool)
}

// Middleware wires authorization guards for HTTP handlers. Every guard
// short-circuits to allowed for tenant administrators without consulting
// the resolver, and denies by default when resolution fails.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Metrics  DecisionRecorder
}

// RequirePermission ensures the principal holds one permission.
func (m Middleware) RequirePermission(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if p.TenantAdmin {
				m.record(true)
				next.ServeHTTP(w, r)
				return
			}
			ok, err := m.Resolver.Check(r.Context(), *p, code)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check failed", slog.Int64("user_id", p.UserID), slog.String("permission", code), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !ok {
				m.deny(w, p, code)
				return
			}
			m.record(true)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the principal holds at least one of the permissions.
func (m Middleware) RequireAny(codes ...string) func(http.Handler) http.Handler {
	return m.guard(codes, func(access Access, codes []string) bool {
		return access.AllowsAny(codes...)
	})
}

// RequireAll ensures the principal holds every listed permission.
func (m Middleware) RequireAll(codes ...string) func(http.Handler) http.Handler {
	return m.guard(codes, func(access Access, codes []string) bool {
		return access.AllowsAll(codes...)
	})
}

func (m Middleware) guard(codes []string, allowed func(Access, []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(codes) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if p.TenantAdmin {
				m.record(true)
				next.ServeHTTP(w, r)
				return
			}
			access, err := m.Resolver.Resolve(r.Context(), *p)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission resolve failed", slog.Int64("user_id", p.UserID), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !allowed(access, codes) {
				m.deny(w, p, codes...)
				return
			}
			m.record(true)
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, p *shared.Principal, missing ...string) {
	m.record(false)
	if m.Logger != nil {
		m.Logger.Warn("permission denied", slog.Int64("user_id", p.UserID), slog.String("missing", strings.Join(missing, ",")))
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission: "+strings.Join(missing, ", "))
}

func (m Middleware) record(allowed bool) {
	if m.Metrics != nil {
		m.Metrics.AuthzDecision(allowed)
	}
}
