package http_handlers

import (
	"net/http"

	"github.com/baechuer/medimg-identity/internal/application/webhook"
	"github.com/baechuer/medimg-identity/internal/transport/http/dto"
	"github.com/baechuer/medimg-identity/internal/transport/http/middleware"
	"github.com/baechuer/medimg-identity/internal/transport/http/response"
)

type WebhookHandler struct {
	events EventHandler
}

func NewWebhookHandler(events EventHandler) *WebhookHandler {
	return &WebhookHandler{events: events}
}

// Clerk handles POST /webhooks/clerk. VerifyWebhook runs first, so the body
// is authentic and the delivery id is in context.
func (h *WebhookHandler) Clerk(w http.ResponseWriter, r *http.Request) {
	var ev webhook.Event
	if err := response.DecodeJSON(r, &ev, false); err != nil {
		response.WriteError(w, r, err)
		return
	}
	ev.ID = middleware.DeliveryIDFromContext(r.Context())

	res, err := h.events.Handle(r.Context(), ev)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	if res.Status == http.StatusNoContent {
		response.NoContent(w)
		return
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	response.WriteJSON(w, status, dto.NewSyncResponse(true, res.Message, res.User))
}
