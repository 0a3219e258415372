package provision

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parishdesk/parishdesk/internal/platform/httpx"
	"github.com/parishdesk/parishdesk/internal/rbac"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// Handler exposes the provisioning endpoints over HTTP.
type Handler struct {
	logger      *slog.Logger
	provisioner *Provisioner
	guard       rbac.Middleware
	validate    *validator.Validate
}

// NewHandler constructs the provisioning HTTP handler.
func NewHandler(logger *slog.Logger, provisioner *Provisioner, guard rbac.Middleware) *Handler {
	return &Handler{
		logger:      logger,
		provisioner: provisioner,
		guard:       guard,
		validate:    validator.New(),
	}
}

// MountPublicRoutes attaches the unauthenticated registration endpoint.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/register", h.register)
}

// MountRoutes attaches the administrative provisioning endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(rbac.PermAccountsProvision)).Post("/provision", h.provision)
	r.With(h.guard.RequireAll(rbac.PermFamiliesImport, rbac.PermParishionersEdit)).Post("/families/import", h.importFamily)
}

type registerRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Name      string  `json:"name" validate:"required,max=200"`
	Password  string  `json:"password" validate:"required,min=8"`
	ParishID  int64   `json:"parish_id" validate:"required,gt=0"`
	WardID    *int64  `json:"ward_id,omitempty" validate:"omitempty,gt=0"`
	FamilyID  *int64  `json:"family_id,omitempty" validate:"omitempty,gt=0"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=30"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.provisioner.Register(r.Context(), RegisterInput{
		Email:     req.Email,
		Name:      req.Name,
		Password:  req.Password,
		ParishID:  req.ParishID,
		WardID:    req.WardID,
		FamilyID:  req.FamilyID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultResponse(result))
}

type provisionRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=PARISHIONER PARISH_ADMIN FAMILY_MEMBER"`
	Account struct {
		Email    string `json:"email" validate:"required,email"`
		Name     string `json:"name" validate:"required,max=200"`
		Password string `json:"password" validate:"required,min=8"`
	} `json:"account"`
	Parishioner *struct {
		WardID    *int64  `json:"ward_id,omitempty" validate:"omitempty,gt=0"`
		FamilyID  *int64  `json:"family_id,omitempty" validate:"omitempty,gt=0"`
		FirstName string  `json:"first_name" validate:"required,max=100"`
		LastName  string  `json:"last_name" validate:"required,max=100"`
		Phone     *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	} `json:"parishioner,omitempty"`
	Admin *struct {
		Title string `json:"title" validate:"max=100"`
	} `json:"admin,omitempty"`
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	p := shared.PrincipalFromContext(r.Context())
	if p.TenantID == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "provisioning requires a parish-scoped caller")
		return
	}

	var profile ProfileFields
	if req.Parishioner != nil {
		profile.Parishioner = &ParishionerFields{
			ParishID:  *p.TenantID,
			WardID:    req.Parishioner.WardID,
			FamilyID:  req.Parishioner.FamilyID,
			FirstName: req.Parishioner.FirstName,
			LastName:  req.Parishioner.LastName,
			Phone:     req.Parishioner.Phone,
		}
	}
	if req.Admin != nil {
		profile.Admin = &AdminFields{ParishID: *p.TenantID, Title: req.Admin.Title}
	}

	result, err := h.provisioner.ProvisionAccountWithProfile(r.Context(), AccountKind(req.Kind),
		AccountFields{
			Email:    req.Account.Email,
			Name:     req.Account.Name,
			Password: req.Account.Password,
			TenantID: p.TenantID,
		},
		profile,
		&p.UserID,
	)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultResponse(result))
}

type importFamilyRequest struct {
	WardID     *int64 `json:"ward_id,omitempty" validate:"omitempty,gt=0"`
	WardName   string `json:"ward_name,omitempty" validate:"omitempty,max=200"`
	FamilyName string `json:"family_name" validate:"required,max=200"`
	HeadName   string `json:"head_name" validate:"max=200"`
	Members    []struct {
		FirstName string  `json:"first_name"`
		LastName  string  `json:"last_name"`
		Email     string  `json:"email,omitempty"`
		Phone     *string `json:"phone,omitempty"`
	} `json:"members" validate:"required,min=1,max=100"`
	// Batch selects the CSV import policy: per-row validation errors are
	// collected instead of failing the whole request.
	Batch bool `json:"batch"`
}

func (h *Handler) importFamily(w http.ResponseWriter, r *http.Request) {
	var req importFamilyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	p := shared.PrincipalFromContext(r.Context())
	if p.TenantID == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "family import requires a parish-scoped caller")
		return
	}

	members := make([]MemberRow, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, MemberRow{
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Email:     m.Email,
			Phone:     m.Phone,
		})
	}

	result, err := h.provisioner.BulkProvisionFamily(r.Context(), BulkFamilyInput{
		TenantID:         *p.TenantID,
		ParishID:         *p.TenantID,
		WardID:           req.WardID,
		WardName:         req.WardName,
		FamilyName:       req.FamilyName,
		HeadName:         req.HeadName,
		Members:          members,
		ActorID:          &p.UserID,
		CollectRowErrors: req.Batch,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"family": map[string]any{
			"id":      result.Family.ID,
			"ward_id": result.Family.WardID,
			"name":    result.Family.Name,
		},
		"ward": map[string]any{
			"id":             result.Ward.ID,
			"name":           result.Ward.Name,
			"total_families": result.Ward.TotalFamilies,
			"total_members":  result.Ward.TotalMembers,
		},
		"created_members": result.Created,
		"errors":          result.Errors,
	})
}

func toResultResponse(result Result) map[string]any {
	out := map[string]any{
		"account": map[string]any{
			"id":    result.Account.ID,
			"email": result.Account.Email,
			"name":  result.Account.Name,
		},
	}
	if result.Parishioner != nil {
		out["parishioner"] = map[string]any{
			"id":         result.Parishioner.ID,
			"parish_id":  result.Parishioner.ParishID,
			"ward_id":    result.Parishioner.WardID,
			"family_id":  result.Parishioner.FamilyID,
			"first_name": result.Parishioner.FirstName,
			"last_name":  result.Parishioner.LastName,
		}
	}
	if result.Admin != nil {
		out["admin"] = map[string]any{
			"id":        result.Admin.ID,
			"parish_id": result.Admin.ParishID,
			"title":     result.Admin.Title,
		}
	}
	return out
}
