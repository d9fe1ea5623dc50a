package rest

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/nlxp/notify-pipeline/internal/domain"
	"github.com/nlxp/notify-pipeline/internal/service"
	"github.com/nlxp/notify-pipeline/internal/transport/rest/response"
)

type Handler struct {
	svc *service.Submitter
}

func NewHandler(svc *service.Submitter) *Handler {
	return &Handler{svc: svc}
}

// Submit accepts a notification for asynchronous delivery. A 202 means
// "durably enqueued", never "delivered".
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body")
		return
	}

	// X-Idempotency-Key is optional; submissions without one are simply
	// never deduplicated.
	idempotencyKey := r.Header.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = r.Header.Get("Idempotency-Key") // legacy fallback
	}

	payload, replayed, err := h.svc.Submit(r.Context(), idempotencyKey, &req)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	if replayed {
		w.Header().Set("X-Idempotency-Replayed", "true")
	}
	response.Raw(w, http.StatusAccepted, payload)
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		fail(w, r, http.StatusBadRequest, "request.invalid", err.Error())
	case domain.KindMissingData:
		fail(w, r, http.StatusBadRequest, "template.missing_data", err.Error())
	case domain.KindNotFound:
		fail(w, r, http.StatusNotFound, "recipient.not_found", err.Error())
	case domain.KindTemplateNotFound:
		fail(w, r, http.StatusNotFound, "template.not_found", err.Error())
	case domain.KindCircuitOpen:
		fail(w, r, http.StatusServiceUnavailable, "upstream.circuit_open", err.Error())
	case domain.KindTransport:
		fail(w, r, http.StatusServiceUnavailable, "upstream.unavailable", err.Error())
	case domain.KindBrokerUnavailable:
		fail(w, r, http.StatusServiceUnavailable, "broker.unavailable", err.Error())
	default:
		// Includes UNAUTHORIZED: a rejected internal secret is our
		// deployment's fault, not the caller's.
		fail(w, r, http.StatusInternalServerError, "internal.error", "internal error")
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	response.Fail(w, status, code, message, GetRequestID(r.Context()))
}
