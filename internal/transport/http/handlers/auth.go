package http_handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/medimg-identity/internal/application/reconcile"
	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
	"github.com/baechuer/medimg-identity/internal/transport/http/dto"
	"github.com/baechuer/medimg-identity/internal/transport/http/middleware"
	"github.com/baechuer/medimg-identity/internal/transport/http/response"
)

type AuthHandler struct {
	svc Reconciler
}

func NewAuthHandler(svc Reconciler) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Sync handles POST /auth/sync/{subjectId}. The caller may only sync itself.
func (h *AuthHandler) Sync(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		response.WriteError(w, r, domain.ErrTokenInvalid())
		return
	}
	pathSubject := strings.TrimSpace(chi.URLParam(r, "subjectId"))
	if pathSubject == "" {
		response.WriteError(w, r, domain.ErrMissingField("subject_id"))
		return
	}
	if pathSubject != subject {
		response.WriteError(w, r, domain.ErrSubjectMismatch())
		return
	}

	var req dto.SyncRequest
	if err := response.DecodeJSON(r, &req, true); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	res, err := h.svc.Sync(r.Context(), reconcile.SyncInput{
		SubjectID: subject,
		SessionID: middleware.SessionIDFromContext(r.Context()),
		Role:      req.Role,
		Specialty: req.Specialty,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusForbidden
	}
	response.WriteJSON(w, status, dto.NewSyncResultResponse(res))
}

// CompleteSignIn handles POST /auth/sign-in/complete.
func (h *AuthHandler) CompleteSignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.SignInCompleteRequest
	if err := response.DecodeJSON(r, &req, false); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	caller, _ := middleware.SubjectFromContext(r.Context())
	out, err := h.svc.CompleteSignIn(r.Context(), reconcile.SignInInput{
		SignInID:      req.SignInID,
		Role:          req.Role,
		Specialty:     req.Specialty,
		CallerSubject: caller,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	writeOutcome(w, r, out)
}

// VerifySecondFactor handles POST /auth/sign-in/verify.
func (h *AuthHandler) VerifySecondFactor(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if err := response.DecodeJSON(r, &req, false); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	out, err := h.svc.VerifySecondFactor(r.Context(), req.VerificationToken, req.Code)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	writeOutcome(w, r, out)
}

// Me handles GET /auth/me. RequireSynced has already loaded the record.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.WriteError(w, r, domain.ErrNotSynced())
		return
	}
	response.OK(w, map[string]any{"user": dto.NewUserView(u)})
}

func writeOutcome(w http.ResponseWriter, r *http.Request, out reconcile.Outcome) {
	status := http.StatusOK
	if f, ok := out.(reconcile.Failed); ok {
		status = http.StatusForbidden
		logger.WithCtx(r.Context()).Info().
			Str("reason", string(f.Reason)).
			Msg("sign-in rejected")
	}
	response.WriteJSON(w, status, dto.NewOutcomeResponse(out))
}
