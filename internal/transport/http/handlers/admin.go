package http_handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/medimg-identity/internal/application/reconcile"
	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/transport/http/dto"
	"github.com/baechuer/medimg-identity/internal/transport/http/middleware"
	"github.com/baechuer/medimg-identity/internal/transport/http/response"
)

const defaultPageSize = 20

type AdminHandler struct {
	svc UserAdmin
}

func NewAdminHandler(svc UserAdmin) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// ListUsers handles GET /admin/users?limit=&offset=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	users, err := h.svc.ListUsers(r.Context(), limit, offset)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.NewUserListResponse(users, limit, offset))
}

// SetRole handles PATCH /admin/users/{subjectId}/role
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		response.WriteError(w, r, domain.ErrTokenInvalid())
		return
	}

	var req dto.SetRoleRequest
	if err := response.DecodeJSON(r, &req, false); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	u, err := h.svc.SetRole(r.Context(), reconcile.SetRoleInput{
		ActorID:   actor,
		SubjectID: chi.URLParam(r, "subjectId"),
		Role:      req.Role,
		Specialty: req.Specialty,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, map[string]any{"user": dto.NewUserView(u)})
}

// InternalGetUser handles GET /internal/users/{subjectId}.
// Other services call it from their route guards; it returns no PII.
func (h *AdminHandler) InternalGetUser(w http.ResponseWriter, r *http.Request) {
	subjectID := strings.TrimSpace(chi.URLParam(r, "subjectId"))
	if subjectID == "" {
		response.WriteError(w, r, domain.ErrMissingField("subject_id"))
		return
	}

	u, err := h.svc.Lookup(r.Context(), subjectID)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.UserStatusResponse{
		SubjectID: u.ClerkID,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ErrInvalidField(key, "must be an integer")
	}
	return n, nil
}
