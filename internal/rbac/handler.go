package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parishdesk/parishdesk/internal/platform/httpx"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// Handler exposes the role registry and assignment store over HTTP.
type Handler struct {
	logger      *slog.Logger
	registry    *Registry
	assignments *Assignments
	resolver    *Resolver
	guard       Middleware
	validate    *validator.Validate
}

// NewHandler constructs the rbac HTTP handler.
func NewHandler(logger *slog.Logger, registry *Registry, assignments *Assignments, resolver *Resolver, guard Middleware) *Handler {
	return &Handler{
		logger:      logger,
		registry:    registry,
		assignments: assignments,
		resolver:    resolver,
		guard:       guard,
		validate:    validator.New(),
	}
}

// MountRoutes attaches registry and assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(PermRolesView)).Get("/roles", h.listRoles)
	r.With(h.guard.RequirePermission(PermRolesEdit)).Post("/roles", h.createRole)
	r.With(h.guard.RequirePermission(PermRolesEdit)).Patch("/roles/{id}", h.updateRole)
	r.With(h.guard.RequirePermission(PermRolesEdit)).Delete("/roles/{id}", h.deleteRole)
	r.With(h.guard.RequirePermission(PermRolesView)).Get("/roles/{id}/permissions", h.rolePermissions)
	r.With(h.guard.RequirePermission(PermRolesEdit)).Put("/roles/{id}/permissions", h.setRolePermissions)

	r.With(h.guard.RequirePermission(PermPermissionsView)).Get("/permissions", h.listPermissions)

	r.With(h.guard.RequirePermission(PermRolesEdit)).Post("/users/{userID}/roles", h.assignRole)
	r.With(h.guard.RequirePermission(PermRolesEdit)).Delete("/users/{userID}/roles/{roleID}", h.removeRole)
	r.With(h.guard.RequirePermission(PermPermissionsEdit)).Post("/users/{userID}/permissions", h.overridePermission)
	r.With(h.guard.RequirePermission(PermPermissionsView)).Get("/users/{userID}/permissions", h.effectivePermissions)
	r.With(h.guard.RequirePermission(PermPermissionsView)).Get("/users/{userID}/permissions/check", h.checkPermission)
}

type roleResponse struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	TenantID     *int64 `json:"tenant_id,omitempty"`
	Priority     int    `json:"priority"`
	IsSystemRole bool   `json:"is_system_role"`
	Status       Status `json:"status"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:           role.ID,
		Code:         role.Code,
		Name:         role.Name,
		Description:  role.Description,
		TenantID:     role.TenantID,
		Priority:     role.Priority,
		IsSystemRole: role.IsSystemRole,
		Status:       role.Status,
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	roles, err := h.registry.ListAll(r.Context(), p.TenantID)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

type createRoleRequest struct {
	Code        string `json:"code" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=500"`
	Priority    int    `json:"priority" validate:"gte=0,lte=1000"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	p := shared.PrincipalFromContext(r.Context())
	role, err := h.registry.Create(r.Context(), CreateRoleInput{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		TenantID:    p.TenantID,
		Priority:    req.Priority,
		CreatedBy:   &p.UserID,
	})
	if err != nil {
		h.logger.Error("create role", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

type updateRoleRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Priority    *int    `json:"priority,omitempty" validate:"omitempty,gte=0,lte=1000"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleInScope(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.registry.Update(r.Context(), id, RolePatch{Name: req.Name, Description: req.Description, Priority: req.Priority})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleInScope(w, r)
	if !ok {
		return
	}
	if err := h.registry.SoftDelete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleInScope(w, r)
	if !ok {
		return
	}
	perms, err := h.registry.Permissions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.Code)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": id, "permissions": codes})
}

type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,required"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleInScope(w, r)
	if !ok {
		return
	}
	var req setRolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.registry.SetPermissions(r.Context(), id, req.Permissions, &p.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.registry.ListCatalog(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type permissionResponse struct {
		ID     int64  `json:"id"`
		Code   string `json:"code"`
		Module string `json:"module"`
		Action string `json:"action"`
		Status Status `json:"status"`
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{ID: p.ID, Code: p.Code, Module: p.Module, Action: p.Action, Status: p.Status})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

type assignRoleRequest struct {
	RoleID    int64      `json:"role_id" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	edge, err := h.assignments.AssignRole(r.Context(), userID, req.RoleID, &p.UserID, req.ExpiresAt)
	if err != nil {
		h.logger.Error("assign role", slog.Int64("user_id", userID), slog.Int64("role_id", req.RoleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"user_id":    edge.UserID,
		"role_id":    edge.RoleID,
		"expires_at": edge.ExpiresAt,
		"status":     edge.Status,
	})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.assignments.RemoveRole(r.Context(), userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type overrideRequest struct {
	PermissionCode string     `json:"permission_code" validate:"required"`
	Type           string     `json:"type" validate:"required,oneof=GRANT REVOKE"`
	Reason         *string    `json:"reason,omitempty" validate:"omitempty,max=500"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) overridePermission(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	perm, err := h.registry.GetPermission(r.Context(), req.PermissionCode)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	p := shared.PrincipalFromContext(r.Context())
	var override UserPermission
	if OverrideType(req.Type) == OverrideGrant {
		override, err = h.assignments.GrantPermission(r.Context(), userID, perm.ID, &p.UserID, req.Reason, req.ExpiresAt)
	} else {
		override, err = h.assignments.RevokePermission(r.Context(), userID, perm.ID, &p.UserID, req.Reason, req.ExpiresAt)
	}
	if err != nil {
		h.logger.Error("permission override", slog.Int64("user_id", userID), slog.String("permission", req.PermissionCode), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"user_id":    override.UserID,
		"permission": perm.Code,
		"type":       override.Type,
		"expires_at": override.ExpiresAt,
	})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	codes, err := h.resolver.EffectiveCodes(r.Context(), shared.Principal{UserID: userID})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": codes})
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "code query parameter required")
		return
	}
	allowed, err := h.resolver.Check(r.Context(), shared.Principal{UserID: userID}, code)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permission": code, "allowed": allowed})
}

// roleInScope parses the role id and hides roles that exist outside the
// caller's tenant: cross-tenant access reports NotFound, never Forbidden.
func (h *Handler) roleInScope(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return 0, false
	}
	role, err := h.registry.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	p := shared.PrincipalFromContext(r.Context())
	if role.TenantID != nil && !p.TenantAdmin {
		if p.TenantID == nil || *p.TenantID != *role.TenantID {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "not found")
			return 0, false
		}
	}
	return id, true
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
